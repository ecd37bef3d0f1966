package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"bountyline/internal/config"
	"bountyline/internal/domain"
	"bountyline/internal/engine"
)

const (
	defaultMirrorInterval = 2 * time.Second
	defaultMirrorTimeout  = 5 * time.Second
	defaultMirrorBatch    = 100
)

// mirrorDispatcher forwards ledger events to the configured mirror
// endpoints, e.g. a distributed-ledger recording service. Delivery is at
// least once per mirror; each mirror keeps its own cursor into the event log
// and a failed delivery stalls that mirror until the endpoint recovers.
type mirrorDispatcher struct {
	engine     engine.Engine
	repository string
	mirrors    []config.MirrorConfig
	client     *http.Client
	mu         sync.Mutex
	cursors    map[int]int64
}

func startMirrorDispatcher(e engine.Engine) {
	if e.Config == nil || len(e.Config.Mirrors) == 0 {
		return
	}
	repository := e.Config.FullName()
	if strings.TrimSpace(repository) == "/" {
		return
	}
	d := &mirrorDispatcher{
		engine:     e,
		repository: repository,
		mirrors:    e.Config.Mirrors,
		client:     &http.Client{Timeout: defaultMirrorTimeout},
		cursors:    make(map[int]int64),
	}
	go d.run()
}

func (d *mirrorDispatcher) run() {
	ticker := time.NewTicker(defaultMirrorInterval)
	defer ticker.Stop()
	for {
		d.dispatchAll()
		<-ticker.C
	}
}

func (d *mirrorDispatcher) dispatchAll() {
	for i, mirror := range d.mirrors {
		if mirror.Enabled != nil && !*mirror.Enabled {
			continue
		}
		if strings.TrimSpace(mirror.URL) == "" {
			continue
		}
		d.dispatchMirror(i, mirror)
	}
}

func (d *mirrorDispatcher) dispatchMirror(idx int, mirror config.MirrorConfig) {
	ctx := context.Background()
	cursor := d.cursorFor(idx)
	events, err := d.engine.Repo.EventsAfter(ctx, defaultMirrorBatch, cursor, d.repository)
	if err != nil {
		log.Printf("mirror: fetch events failed: %v", err)
		return
	}
	if len(events) == 0 {
		return
	}
	filter := newEventFilter(mirror.Events)
	for _, evt := range events {
		if !filter.match(evt.Type) {
			d.setCursor(idx, evt.ID)
			continue
		}
		if err := d.postEvent(ctx, mirror, evt); err != nil {
			log.Printf("mirror: deliver to %s failed: %v", mirror.URL, err)
			return
		}
		d.setCursor(idx, evt.ID)
	}
}

func (d *mirrorDispatcher) cursorFor(idx int) int64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cur, ok := d.cursors[idx]; ok {
		return cur
	}
	cur, err := d.engine.Repo.LatestEventID(context.Background())
	if err != nil {
		log.Printf("mirror: init cursor failed: %v", err)
		cur = 0
	}
	d.cursors[idx] = cur
	return cur
}

func (d *mirrorDispatcher) setCursor(idx int, value int64) {
	d.mu.Lock()
	d.cursors[idx] = value
	d.mu.Unlock()
}

type mirrorEvent struct {
	ID         int64           `json:"id"`
	Type       string          `json:"type"`
	Repository string          `json:"repository,omitempty"`
	EntityKind string          `json:"entity_kind"`
	EntityID   string          `json:"entity_id,omitempty"`
	ActorID    string          `json:"actor_id"`
	TS         string          `json:"ts"`
	Payload    json.RawMessage `json:"payload"`
}

func (d *mirrorDispatcher) postEvent(ctx context.Context, mirror config.MirrorConfig, evt domain.Event) error {
	payload := json.RawMessage([]byte("{}"))
	if evt.Payload != "" && json.Valid([]byte(evt.Payload)) {
		payload = json.RawMessage([]byte(evt.Payload))
	}
	body := mirrorEvent{
		ID:         evt.ID,
		Type:       evt.Type,
		Repository: evt.Repository,
		EntityKind: evt.EntityKind,
		EntityID:   evt.EntityID,
		ActorID:    evt.ActorID,
		TS:         evt.TS,
		Payload:    payload,
	}
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, mirror.URL, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Bountyline-Event", evt.Type)
	req.Header.Set("X-Bountyline-Delivery", fmt.Sprintf("%d", evt.ID))
	req.Header.Set("X-Bountyline-Repository", d.repository)
	if strings.TrimSpace(mirror.Secret) != "" {
		req.Header.Set("X-Bountyline-Secret", mirror.Secret)
	}
	res, err := d.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		bodyBytes, _ := io.ReadAll(io.LimitReader(res.Body, 4096))
		return fmt.Errorf("status %d: %s", res.StatusCode, strings.TrimSpace(string(bodyBytes)))
	}
	return nil
}

type eventFilter struct {
	all bool
	set map[string]struct{}
}

func newEventFilter(events []string) eventFilter {
	if len(events) == 0 {
		return eventFilter{all: true}
	}
	set := make(map[string]struct{}, len(events))
	for _, evt := range events {
		key := strings.TrimSpace(evt)
		if key == "" {
			continue
		}
		set[key] = struct{}{}
	}
	if len(set) == 0 {
		return eventFilter{all: true}
	}
	return eventFilter{set: set}
}

func (f eventFilter) match(evt string) bool {
	if f.all {
		return true
	}
	_, ok := f.set[evt]
	return ok
}
