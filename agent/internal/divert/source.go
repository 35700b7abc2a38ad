package divert

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"mime/multipart"
	"mime/quotedprintable"
	"net/mail"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// LoadNoticeDir reads every .eml and .txt file in dir, keeps the ones whose
// subject looks like a divert notification, and returns them parsed and
// ordered by timestamp. Notices older than since are dropped (a zero since
// keeps everything). A file that cannot be read or parsed is logged and
// skipped.
//
// .eml files are RFC 5322 messages. .txt files use the first line as the
// subject and the rest as the body.
func LoadNoticeDir(dir string, since time.Time) ([]Notice, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("divert: read notice dir: %w", err)
	}

	var out []Notice
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		path := filepath.Join(dir, e.Name())
		var (
			n  Notice
			ok bool
		)
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".eml":
			n, ok, err = readMessageFile(path)
		case ".txt":
			n, ok, err = readTextFile(path)
		default:
			continue
		}
		if err != nil {
			slog.Warn("divert: skipping unreadable notice", "path", path, "err", err)
			continue
		}
		if !ok {
			continue
		}
		if !since.IsZero() && n.Timestamp.Before(since) {
			continue
		}
		out = append(out, n)
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func readMessageFile(path string) (Notice, bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return Notice{}, false, err
	}
	defer f.Close()
	return ReadMessage(f, filepath.Base(path))
}

// ReadMessage parses one RFC 5322 message. ok is false when the subject is
// not a divert notification.
func ReadMessage(r io.Reader, origin string) (n Notice, ok bool, err error) {
	msg, err := mail.ReadMessage(r)
	if err != nil {
		return Notice{}, false, fmt.Errorf("parse message: %w", err)
	}

	dec := new(mime.WordDecoder)
	subject, err := dec.DecodeHeader(msg.Header.Get("Subject"))
	if err != nil {
		subject = msg.Header.Get("Subject")
	}
	if !IsNoticeSubject(subject) {
		return Notice{}, false, nil
	}

	body, err := plainBody(msg.Header, msg.Body)
	if err != nil {
		return Notice{}, false, fmt.Errorf("read body: %w", err)
	}

	n = ParseNotice(subject, body)
	n.Origin = origin
	if n.Timestamp.IsZero() {
		if d, err := msg.Header.Date(); err == nil {
			n.Timestamp = d.UTC()
		}
	}
	return n, true, nil
}

// plainBody returns the text/plain content of a message, descending into
// multipart bodies and undoing quoted-printable encoding.
func plainBody(h mail.Header, body io.Reader) (string, error) {
	mediaType, params, err := mime.ParseMediaType(h.Get("Content-Type"))
	if err != nil {
		mediaType = "text/plain"
	}

	if strings.HasPrefix(mediaType, "multipart/") {
		mr := multipart.NewReader(body, params["boundary"])
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return "", nil
			}
			if err != nil {
				return "", err
			}
			ct, _, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
			if ct != "" && ct != "text/plain" {
				continue
			}
			// multipart.Part already decodes quoted-printable parts.
			b, err := io.ReadAll(part)
			if err != nil {
				return "", err
			}
			return string(b), nil
		}
	}

	if strings.EqualFold(h.Get("Content-Transfer-Encoding"), "quoted-printable") {
		body = quotedprintable.NewReader(body)
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func readTextFile(path string) (Notice, bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Notice{}, false, err
	}
	sc := bufio.NewScanner(bytes.NewReader(data))
	if !sc.Scan() {
		return Notice{}, false, nil
	}
	subject := strings.TrimSpace(sc.Text())
	if !IsNoticeSubject(subject) {
		return Notice{}, false, nil
	}
	body := strings.TrimPrefix(string(data), sc.Text())
	n := ParseNotice(subject, body)
	n.Origin = filepath.Base(path)
	return n, true, nil
}
