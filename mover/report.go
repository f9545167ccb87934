package mover

import (
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"
	yaml "gopkg.in/yaml.v3"
)

// BatchReport aggregates the outcomes of one cycle.
type BatchReport struct {
	CycleID      string
	Source       string
	Destination  string
	MaxMessages  int
	WaitSeconds  int
	Received     int
	ReceiveError error // receive failed, no message was processed
	Outcomes     []Outcome
	Elapsed      time.Duration
}

// Count returns the number of outcomes with status s.
func (r BatchReport) Count(s Status) int {
	var count int
	for _, o := range r.Outcomes {
		if o.Status == s {
			count++
		}
	}
	return count
}

// Empty reports a cycle that received nothing.
func (r BatchReport) Empty() bool {
	return r.ReceiveError == nil && r.Received == 0
}

// PossibleDuplicates lists the ids of messages written to destination
// but left in source.
func (r BatchReport) PossibleDuplicates() []string {
	var ids []string
	for _, o := range r.Outcomes {
		if o.Status == DeleteFailed {
			ids = append(ids, o.MessageID)
		}
	}
	return ids
}

type reportView struct {
	CycleID      string        `json:"cycle_id"                yaml:"cycle_id"`
	Source       string        `json:"source"                  yaml:"source"`
	Destination  string        `json:"destination"             yaml:"destination"`
	MaxMessages  int           `json:"max_messages"            yaml:"max_messages"`
	WaitSeconds  int           `json:"wait_seconds"            yaml:"wait_seconds"`
	Received     int           `json:"received"                yaml:"received"`
	ReceiveError string        `json:"receive_error,omitempty" yaml:"receive_error,omitempty"`
	Moved        int           `json:"moved"                   yaml:"moved"`
	SendFailed   int           `json:"send_failed"             yaml:"send_failed"`
	DeleteFailed int           `json:"delete_failed"           yaml:"delete_failed"`
	Elapsed      string        `json:"elapsed"                 yaml:"elapsed"`
	Outcomes     []outcomeView `json:"outcomes,omitempty"      yaml:"outcomes,omitempty"`
}

type outcomeView struct {
	MessageID            string `json:"message_id"                       yaml:"message_id"`
	Outcome              Status `json:"outcome"                          yaml:"outcome"`
	DestinationMessageID string `json:"destination_message_id,omitempty" yaml:"destination_message_id,omitempty"`
	DestinationWritten   bool   `json:"destination_written"              yaml:"destination_written"`
	FirstItem            string `json:"first_item"                       yaml:"first_item"`
	Error                string `json:"error,omitempty"                  yaml:"error,omitempty"`
	ErrorCode            string `json:"error_code,omitempty"             yaml:"error_code,omitempty"`
}

func (r BatchReport) view() reportView {
	v := reportView{
		CycleID:      r.CycleID,
		Source:       r.Source,
		Destination:  r.Destination,
		MaxMessages:  r.MaxMessages,
		WaitSeconds:  r.WaitSeconds,
		Received:     r.Received,
		Moved:        r.Count(Moved),
		SendFailed:   r.Count(SendFailed),
		DeleteFailed: r.Count(DeleteFailed),
		Elapsed:      r.Elapsed.String(),
	}
	if r.ReceiveError != nil {
		v.ReceiveError = r.ReceiveError.Error()
	}
	for _, o := range r.Outcomes {
		ov := outcomeView{
			MessageID:            o.MessageID,
			Outcome:              o.Status,
			DestinationMessageID: o.DestinationMessageID,
			DestinationWritten:   o.DestinationWritten,
			FirstItem:            o.FirstItem,
			ErrorCode:            o.ErrorCode(),
		}
		if o.Err != nil {
			ov.Error = o.Err.Error()
		}
		v.Outcomes = append(v.Outcomes, ov)
	}
	return v
}

// Report formats accepted by Write.
const (
	FormatNone = "none"
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// Write renders the report to w as json (one line) or yaml.
// FormatNone writes nothing.
func (r BatchReport) Write(w io.Writer, format string) error {
	switch format {
	case FormatNone, "":
		return nil
	case FormatJSON:
		buf, err := json.Marshal(r.view())
		if err != nil {
			return err
		}
		buf = append(buf, '\n')
		_, errWrite := w.Write(buf)
		return errWrite
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(r.view()); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("report: unsupported format: %s", format)
}
