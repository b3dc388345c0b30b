package leads

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/wolfman30/leasing-leads-api/internal/calltouch"
)

// Intent identifies which site form produced a lead.
type Intent string

const (
	IntentModel        Intent = "model"
	IntentSpecialLease Intent = "special_lease"
	IntentContact      Intent = "contact"
)

// RequiresModel reports whether the form carries an equipment model.
func (i Intent) RequiresModel() bool {
	return i == IntentModel
}

// SuccessMessage is the confirmation shown to the visitor.
func (i Intent) SuccessMessage() string {
	switch i {
	case IntentModel:
		return msgModelOK
	case IntentSpecialLease:
		return msgLeaseOK
	default:
		return msgContactsOK
	}
}

// Subject names the lead in CallTouch and e-mail notices.
func (i Intent) Subject(siteHost string) string {
	var subject string
	switch i {
	case IntentModel:
		subject = subjectModel
	case IntentSpecialLease:
		subject = subjectLease
	default:
		subject = subjectContacts
	}
	if siteHost == "" {
		return subject
	}
	return subject + " — " + siteHost
}

// Fields are the raw form values as submitted.
type Fields struct {
	Name  string
	Phone string
	Model string
}

// Submission is an accepted lead on its way to CallTouch.
type Submission struct {
	Intent     Intent
	Name       string
	Phone      string
	Model      string
	SourceURL  string
	ReceivedAt time.Time
}

func newSubmission(intent Intent, f Fields, sourceURL string, receivedAt time.Time) Submission {
	sub := Submission{
		Intent:     intent,
		Name:       strings.TrimSpace(f.Name),
		Phone:      strings.TrimSpace(f.Phone),
		SourceURL:  sourceURL,
		ReceivedAt: receivedAt,
	}
	if intent.RequiresModel() {
		sub.Model = strings.TrimSpace(f.Model)
	}
	return sub
}

// Payload converts the submission into the webhook form.
func (s Submission) Payload(siteHost string) calltouch.Payload {
	return calltouch.Payload{
		Subject:    s.Intent.Subject(siteHost),
		RequestURL: s.SourceURL,
		FIO:        s.Name,
		Phone:      s.Phone,
		Model:      s.Model,
	}
}

// decodeFields reads exactly one JSON object. Values that are not JSON strings
// count as missing so validation reports them; an empty body is an empty
// object. Anything after the object makes the body malformed.
func decodeFields(body io.Reader) (Fields, error) {
	dec := json.NewDecoder(body)
	var raw map[string]json.RawMessage
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			return Fields{}, nil
		}
		return Fields{}, errors.Join(ErrMalformedBody, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			err = errors.New("unexpected data after JSON object")
		}
		return Fields{}, errors.Join(ErrMalformedBody, err)
	}
	return Fields{
		Name:  stringField(raw, "name"),
		Phone: stringField(raw, "phone"),
		Model: stringField(raw, "model"),
	}, nil
}

// isJSON reports whether the request declares a JSON body. Other bodies are
// left unread and validate as an empty form.
func isJSON(r *http.Request) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	return err == nil && mediaType == "application/json"
}

func stringField(raw map[string]json.RawMessage, key string) string {
	value, ok := raw[key]
	if !ok {
		return ""
	}
	var s string
	if err := json.Unmarshal(value, &s); err != nil {
		return ""
	}
	return s
}
