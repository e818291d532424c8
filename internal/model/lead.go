package model

import (
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// CustomFields holds free-form per-lead attributes from CSV import,
// persisted as a JSON column.
type CustomFields map[string]string

func (f CustomFields) Value() (driver.Value, error) {
	if f == nil {
		return "{}", nil
	}
	b, err := json.Marshal(f)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (f *CustomFields) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		*f = nil
		return nil
	case []byte:
		return json.Unmarshal(v, f)
	case string:
		return json.Unmarshal([]byte(v), f)
	default:
		return fmt.Errorf("custom_fields: unsupported type %T", src)
	}
}

// Lead is a recipient profile. The engine only ever reads it; the responded
// flag is flipped by the reply watcher and is a hard stop for sending.
type Lead struct {
	ID           int64        `db:"id"`
	Email        string       `db:"email"`
	Name         string       `db:"name"`
	LastName     string       `db:"last_name"`
	City         string       `db:"city"`
	Brokerage    string       `db:"brokerage"`
	Service      string       `db:"service"`
	ListName     string       `db:"list_name"`
	CustomFields CustomFields `db:"custom_fields"`
	Responded    bool         `db:"responded"`
	RespondedAt  sql.NullTime `db:"responded_at"`
	CreatedAt    time.Time    `db:"created_at"`
}

// TemplateFields flattens the lead into the map used for {placeholder}
// substitution. Custom fields never shadow the built-in columns.
func (l Lead) TemplateFields() map[string]string {
	fields := map[string]string{
		"email":     l.Email,
		"name":      l.Name,
		"last_name": l.LastName,
		"city":      l.City,
		"brokerage": l.Brokerage,
		"service":   l.Service,
		"list_name": l.ListName,
	}
	for k, v := range l.CustomFields {
		if _, ok := fields[k]; !ok {
			fields[k] = v
		}
	}
	return fields
}
