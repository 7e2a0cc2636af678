package journal

// ScanEvent is one recorded allocation attempt, accepted or rejected.
type ScanEvent struct {
	ID        int64  `json:"id"`
	EventUUID string `json:"event_uuid"`
	Barcode   string `json:"barcode"`
	SKU       string `json:"sku"`
	Token     string `json:"token"`
	RowID     string `json:"row_id"`
	GroupKey  string `json:"group_key"`
	Outcome   string `json:"outcome"` // "accepted" or "rejected"
	Detail    string `json:"detail"`
	CreatedAt string `json:"created_at"`
}

// Scan outcomes.
const (
	OutcomeAccepted = "accepted"
	OutcomeRejected = "rejected"
)

func (db *DB) InsertScanEvent(ev ScanEvent) (int64, error) {
	res, err := db.Exec(`INSERT INTO scan_events (event_uuid, barcode, sku, token, row_id, group_key, outcome, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		ev.EventUUID, ev.Barcode, ev.SKU, ev.Token, ev.RowID, ev.GroupKey, ev.Outcome, ev.Detail)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (db *DB) ListScanEvents(limit int) ([]ScanEvent, error) {
	rows, err := db.Query(`SELECT id, event_uuid, barcode, sku, token, row_id, group_key, outcome, detail, created_at
		FROM scan_events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []ScanEvent
	for rows.Next() {
		var ev ScanEvent
		if err := rows.Scan(&ev.ID, &ev.EventUUID, &ev.Barcode, &ev.SKU, &ev.Token, &ev.RowID,
			&ev.GroupKey, &ev.Outcome, &ev.Detail, &ev.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}
