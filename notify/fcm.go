package notify

import (
	"context"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/sjson"

	"github.com/zkpermit/zkpermit-go/logging"
)

// FCM delivers messages to an FCM-style push gateway. Every Send returns
// immediately; the HTTP call runs on its own goroutine and failures end up
// in the log, nowhere else.
type FCM struct {
	endpoint  string
	serverKey string
	client    *retryablehttp.Client
	log       logging.Logger
}

// NewFCM builds the gateway client. Retries are capped so event
// processing never stalls behind a slow push gateway.
func NewFCM(endpoint, serverKey string, log logging.Logger) *FCM {
	client := retryablehttp.NewClient()
	client.RetryMax = 2
	client.Logger = nil
	return &FCM{
		endpoint:  endpoint,
		serverKey: serverKey,
		client:    client,
		log:       log,
	}
}

func (f *FCM) Send(_ context.Context, m Message) {
	if m.To == "" {
		return
	}
	go f.deliver(m)
}

func (f *FCM) deliver(m Message) {
	payload, _ := sjson.Set(`{}`, "to", m.To)
	payload, _ = sjson.Set(payload, "notification.title", m.Title)
	payload, _ = sjson.Set(payload, "notification.body", m.Body)
	payload, _ = sjson.Set(payload, "data.messageId", uuid.NewString())

	req, err := retryablehttp.NewRequest("POST", f.endpoint, []byte(payload))
	if err != nil {
		f.log.Error("push request build failed", "err", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "key="+f.serverKey)

	resp, err := f.client.Do(req)
	if err != nil {
		f.log.Error("push delivery failed", "to", m.To, "err", err)
		return
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode >= 300 {
		f.log.Warn("push gateway rejected message", "to", m.To, "status", resp.StatusCode)
	}
}
