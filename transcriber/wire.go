package transcriber

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// multipartBody frames a multipart/form-data request body by hand.
// Text fields are written strictly before the file part; whisper-style
// endpoints read the small fields first and some reject bodies where
// the file precedes them.
type multipartBody struct {
	boundary  string
	buf       bytes.Buffer
	fileAdded bool
	closed    bool
}

func newMultipartBody() *multipartBody {
	return &multipartBody{
		boundary: "murmur" + strings.ReplaceAll(uuid.NewString(), "-", ""),
	}
}

func (m *multipartBody) ContentType() string {
	return "multipart/form-data; boundary=" + m.boundary
}

// WriteField appends a text field. Must precede WriteFile.
func (m *multipartBody) WriteField(name, value string) error {
	if m.fileAdded {
		return fmt.Errorf("field %q after file part", name)
	}
	if m.closed {
		return fmt.Errorf("field %q after close", name)
	}
	fmt.Fprintf(&m.buf, "--%s\r\n", m.boundary)
	fmt.Fprintf(&m.buf, "Content-Disposition: form-data; name=%q\r\n\r\n", name)
	m.buf.WriteString(value)
	m.buf.WriteString("\r\n")
	return nil
}

// WriteFile appends the single binary part.
func (m *multipartBody) WriteFile(name, filename, contentType string, data []byte) error {
	if m.fileAdded {
		return fmt.Errorf("second file part %q", filename)
	}
	if m.closed {
		return fmt.Errorf("file part %q after close", filename)
	}
	m.fileAdded = true
	fmt.Fprintf(&m.buf, "--%s\r\n", m.boundary)
	fmt.Fprintf(&m.buf, "Content-Disposition: form-data; name=%q; filename=%q\r\n", name, filename)
	fmt.Fprintf(&m.buf, "Content-Type: %s\r\n\r\n", contentType)
	m.buf.Write(data)
	m.buf.WriteString("\r\n")
	return nil
}

// Close writes the terminating boundary. No parts may follow.
func (m *multipartBody) Close() {
	if m.closed {
		return
	}
	m.closed = true
	fmt.Fprintf(&m.buf, "--%s--\r\n", m.boundary)
}

func (m *multipartBody) Bytes() []byte { return m.buf.Bytes() }
