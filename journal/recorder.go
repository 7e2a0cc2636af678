package journal

import (
	"log"
	"strconv"

	"packscan/engine"

	"github.com/google/uuid"
)

// AttachRecorder subscribes the journal to the engine's event bus so every
// allocation attempt leaves an audit record.
func AttachRecorder(db *DB, bus *engine.EventBus) {
	bus.Subscribe(func(evt engine.Event) {
		switch evt.Type {
		case engine.EventScanAccepted:
			p := evt.Payload.(engine.ScanAcceptedEvent)
			record(db, ScanEvent{
				EventUUID: uuid.New().String(),
				Barcode:   p.Barcode,
				SKU:       p.Result.SKU,
				Token:     p.Result.Token,
				RowID:     p.RowID,
				GroupKey:  p.Result.ContactNumber,
				Outcome:   OutcomeAccepted,
			})
		case engine.EventScanRejected:
			p := evt.Payload.(engine.ScanRejectedEvent)
			record(db, ScanEvent{
				EventUUID: uuid.New().String(),
				Barcode:   p.Barcode,
				Outcome:   OutcomeRejected,
				Detail:    strconv.Itoa(p.Status) + ": " + p.Message,
			})
		}
	})
}

func record(db *DB, ev ScanEvent) {
	if _, err := db.InsertScanEvent(ev); err != nil {
		log.Printf("record scan event: %v", err)
	}
}
