package model

import "fmt"

// IndexData pairs a data file with the positional index built over it.
// The index is only valid for the exact byte content of Data: whenever Data is
// rewritten the index must be regenerated, never carried over or copied
// independently. Code that produces IndexData is responsible for upholding
// that invariant; this type just keeps the two paths from drifting apart.
type IndexData struct {
	Data  string
	Index string
}

// Validate checks that both halves of the pair are set.
func (d IndexData) Validate() error {
	if d.Data == "" {
		return fmt.Errorf("index data: data file is empty")
	}
	if d.Index == "" {
		return fmt.Errorf("index data: index file for %s is empty", d.Data)
	}
	return nil
}
