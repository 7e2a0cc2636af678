package messaging

import (
	"encoding/json"
	"log"
	"time"

	"packscan/config"
	"packscan/engine"
	"packscan/journal"
)

// PrintRequest is the outbound message the print/export layer consumes to
// locate and release a label page.
type PrintRequest struct {
	StationID     string `json:"station_id"`
	ContactNumber string `json:"contact_number"`
	AWB           string `json:"awb"`
	SourceFile    string `json:"source_file"`
	PageIndex     string `json:"page_index"`
	Timestamp     string `json:"timestamp"`
}

// ScanReport is the outbound scan-feed message.
type ScanReport struct {
	StationID string `json:"station_id"`
	Barcode   string `json:"barcode"`
	SKU       string `json:"sku"`
	Group     string `json:"group"`
	Accepted  bool   `json:"accepted"`
	Detail    string `json:"detail,omitempty"`
	Timestamp string `json:"timestamp"`
}

// Reporter subscribes to engine events and enqueues outbound messages to
// the outbox; the drainer delivers them when the broker is reachable.
type Reporter struct {
	db        *journal.DB
	cfg       *config.MessagingConfig
	stationID string
}

// NewReporter creates a Reporter.
func NewReporter(db *journal.DB, cfg *config.MessagingConfig, stationID string) *Reporter {
	return &Reporter{db: db, cfg: cfg, stationID: stationID}
}

// Attach wires the reporter to the engine's event bus.
func (r *Reporter) Attach(bus *engine.EventBus) {
	bus.Subscribe(func(evt engine.Event) {
		switch evt.Type {
		case engine.EventGroupCompleted:
			p := evt.Payload.(engine.GroupCompletedEvent)
			if p.PrintInfo == nil {
				return
			}
			r.enqueue(r.cfg.PrintTopic, "print_request", PrintRequest{
				StationID:     r.stationID,
				ContactNumber: p.ContactNumber,
				AWB:           p.AWB,
				SourceFile:    p.PrintInfo.SourceFile,
				PageIndex:     p.PrintInfo.PageIndex,
				Timestamp:     time.Now().UTC().Format(time.RFC3339),
			})
		case engine.EventScanAccepted:
			p := evt.Payload.(engine.ScanAcceptedEvent)
			r.enqueue(r.cfg.ScanTopic, "scan_report", ScanReport{
				StationID: r.stationID,
				Barcode:   p.Barcode,
				SKU:       p.Result.SKU,
				Group:     p.Result.ContactNumber,
				Accepted:  true,
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			})
		case engine.EventScanRejected:
			p := evt.Payload.(engine.ScanRejectedEvent)
			r.enqueue(r.cfg.ScanTopic, "scan_report", ScanReport{
				StationID: r.stationID,
				Barcode:   p.Barcode,
				Accepted:  false,
				Detail:    p.Message,
				Timestamp: time.Now().UTC().Format(time.RFC3339),
			})
		}
	})
}

func (r *Reporter) enqueue(topic, msgType string, v interface{}) {
	payload, _ := json.Marshal(v)
	if _, err := r.db.EnqueueOutbox(topic, payload, msgType); err != nil {
		log.Printf("enqueue %s: %v", msgType, err)
	}
}
