package models

import (
	"fmt"
	"strings"
)

// Protocolled is an entity whose unique protocol is drawn from a sequential counter.
type Protocolled interface {
	CounterScope() CounterScope
	CurrentProtocol() string
	ApplyProtocol(sequence int64, protocol string)
}

// FormatProtocol renders a counter value as a zero padded protocol, e.g. "003/2024".
func FormatProtocol(sequence int64, year int) string {
	return fmt.Sprintf("%03d/%d", sequence, year)
}

// CurrentProtocol returns the protocol the document is about to be written with.
func (d *ProtocolDocument) CurrentProtocol() string {
	return d.Protocol
}

// ProtocolPlaceholder marks where a client-written heading wants the protocol.
const ProtocolPlaceholder = "{protocolo}"

// ApplyProtocol rewrites the protocol and the heading text derived from it.
// A heading carrying ProtocolPlaceholder gets the protocol in its place. Any
// other client text is kept after the generated "<kind> nº <protocol>" prefix.
// A re-mint swaps the previous protocol wherever it already appears.
func (d *ProtocolDocument) ApplyProtocol(sequence int64, protocol string) {
	previous := d.Protocol
	d.Sequence = sequence
	d.Protocol = protocol

	text := d.Content.LeftBlockText
	switch {
	case previous != "" && strings.Contains(text, previous):
		d.Content.LeftBlockText = strings.ReplaceAll(text, previous, protocol)
	case strings.Contains(text, ProtocolPlaceholder):
		d.Content.LeftBlockText = strings.ReplaceAll(text, ProtocolPlaceholder, protocol)
	default:
		heading := fmt.Sprintf("%s nº %s", d.Kind.Label(), protocol)
		if suffix := strings.TrimSpace(text); suffix != "" {
			heading += " " + suffix
		}
		d.Content.LeftBlockText = heading
	}
}

// CounterScope returns the numbering scope for bidding protocols of the sector.
func (p *BiddingProcess) CounterScope() CounterScope {
	return CounterScope{Category: "bidding:" + p.SectorID, Year: p.CreatedAt.Year()}
}

// CurrentProtocol returns the protocol the process is about to be written with.
func (p *BiddingProcess) CurrentProtocol() string {
	return p.Protocol
}

// ApplyProtocol rewrites the process protocol.
func (p *BiddingProcess) ApplyProtocol(_ int64, protocol string) {
	p.Protocol = protocol
}
