package ledger

import (
	"bytes"
	"strconv"
	"time"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// TimestampLayout is the canonical rendering of created_at: UTC with
// millisecond precision and a literal Z.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// GenesisSentinel replaces a null prev_hash in the canonical encoding.
const GenesisSentinel = "0"

// CanonicalTime truncates t to the precision the encoding can represent.
// Records are stamped with this value so the stored timestamp and the hashed
// timestamp are identical.
func CanonicalTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}

// FormatTimestamp renders t in the canonical layout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// ParseTimestamp is the inverse of FormatTimestamp.
func ParseTimestamp(s string) (time.Time, error) {
	t, err := time.Parse(TimestampLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

// Encode produces the canonical bytes hashed into a record's record_hash.
//
// The output is a JSON object with keys in a fixed order that never depends
// on map iteration or struct layout:
//
//	project_code, project_name, category, implementing_authority,
//	responsible_official, approval_date, start_date,
//	expected_completion_date, total_allocated_amount, status,
//	partition_id, ward, creator_id, prev_hash, created_at
//
// Absent optional fields encode as "", a zero prev_hash encodes as "0".
// Strings are NFC-normalized and only '"', '\' and control characters are
// escaped. The amount is a bare number in shortest decimal form and the
// partition id a bare integer.
//
// The byte layout is a compatibility contract: changing it invalidates every
// stored hash.
func Encode(d Draft, prevHash Hash, createdAt time.Time) []byte {
	prev := string(prevHash)
	if prevHash.IsZero() {
		prev = GenesisSentinel
	}

	var buf bytes.Buffer
	buf.Grow(512)
	buf.WriteByte('{')

	w := fieldWriter{buf: &buf}
	w.str("project_code", d.ProjectCode)
	w.str("project_name", d.ProjectName)
	w.str("category", string(d.Category))
	w.str("implementing_authority", d.ImplementingAuthority)
	w.str("responsible_official", d.ResponsibleOfficial)
	w.str("approval_date", d.ApprovalDate)
	w.str("start_date", d.StartDate)
	w.str("expected_completion_date", d.ExpectedCompletionDate)
	w.raw("total_allocated_amount", d.TotalAllocatedAmount.String())
	w.str("status", string(d.Status))
	w.raw("partition_id", strconv.FormatInt(int64(d.PartitionID), 10))
	w.str("ward", d.Ward)
	w.str("creator_id", d.CreatorID)
	w.str("prev_hash", prev)
	w.str("created_at", FormatTimestamp(createdAt))

	buf.WriteByte('}')
	return buf.Bytes()
}

type fieldWriter struct {
	buf *bytes.Buffer
	n   int
}

func (w *fieldWriter) key(k string) {
	if w.n > 0 {
		w.buf.WriteByte(',')
	}
	w.n++
	writeString(w.buf, k)
	w.buf.WriteByte(':')
}

func (w *fieldWriter) str(k, v string) {
	w.key(k)
	writeString(w.buf, v)
}

func (w *fieldWriter) raw(k, v string) {
	w.key(k)
	w.buf.WriteString(v)
}

const hexDigits = "0123456789abcdef"

// writeString writes s as a quoted JSON string after NFC normalization.
// Invalid UTF-8 is replaced with U+FFFD so every input has one encoding.
func writeString(buf *bytes.Buffer, s string) {
	s = norm.NFC.String(s)
	buf.WriteByte('"')
	for i := 0; i < len(s); {
		r, size := utf8.DecodeRuneInString(s[i:])
		i += size
		switch {
		case r == '"':
			buf.WriteString(`\"`)
		case r == '\\':
			buf.WriteString(`\\`)
		case r == '\b':
			buf.WriteString(`\b`)
		case r == '\f':
			buf.WriteString(`\f`)
		case r == '\n':
			buf.WriteString(`\n`)
		case r == '\r':
			buf.WriteString(`\r`)
		case r == '\t':
			buf.WriteString(`\t`)
		case r < 0x20:
			buf.WriteString(`\u00`)
			buf.WriteByte(hexDigits[r>>4])
			buf.WriteByte(hexDigits[r&0xF])
		default:
			buf.WriteRune(r)
		}
	}
	buf.WriteByte('"')
}
