// Package signal implements the event interface between the escrow core and
// presentation adapters. Every event is wrapped in an Envelope, encoded as JSON
// and handed to the registered handler.
package signal
