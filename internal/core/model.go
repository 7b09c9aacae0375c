package core

import "strconv"

// Record is one logical chat message, the unified structure written to CSV and SQLite.
type Record struct {
	UniqueID      string // sequence-assigned, e.g. "PRO17"
	FileSource    string
	Date          string // literal header date, e.g. "10/06/2025"
	Time          string // literal header time, e.g. "5:22:03 AM"
	SenderName    string
	SenderPhone   string // optional
	SenderPhone2  string // optional, never equal to SenderPhone
	Message       string // cleaned body
	MessageBackup string // body as captured, read by the taggers
	Status        string // ", "-joined tags
	Region        string // ", "-joined tags
	LineNumber    int    // line of the header that opened the record
}

// UnknownSender is the name used when the sender field is itself a phone number.
const UnknownSender = "Unknown"

// TagSeparator joins status and region tags.
const TagSeparator = ", "

// Columns is the fixed output column order shared by every sink.
var Columns = []string{
	"unique_id",
	"file_source",
	"date",
	"time",
	"sender_name",
	"sender_phone",
	"sender_phone_2",
	"message",
	"message_backup",
	"status",
	"region",
	"line_number",
}

// Row renders the record in Columns order.
func (r Record) Row() []string {
	return []string{
		r.UniqueID,
		r.FileSource,
		r.Date,
		r.Time,
		r.SenderName,
		r.SenderPhone,
		r.SenderPhone2,
		r.Message,
		r.MessageBackup,
		r.Status,
		r.Region,
		strconv.Itoa(r.LineNumber),
	}
}
