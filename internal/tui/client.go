package tui

import (
	"bufio"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/voxdeck/voxdeck/internal/telemetry"
)

// --- Message types ---

type eventMsg telemetry.Event

type healthMsg struct {
	Status         string `json:"status"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
	SessionID      string `json:"session_id"`
	CommandsLoaded int    `json:"commands_loaded"`
	CommandsReady  int    `json:"commands_ready"`
	Recording      bool   `json:"recording"`
	Playing        bool   `json:"playing"`
	PendingQueue   int    `json:"pending_queue"`
}

type tickMsg time.Time

type errMsg error

type sseDisconnectedMsg struct{}
type reconnectMsg struct{}

// --- Commands ---

// subscribeToEvents connects to the SSE /v1/events/stream endpoint and feeds
// events into the provided channel. afterSeq becomes the Last-Event-ID
// header, so a reconnect resumes where the dropped stream left off.
// Returns sseDisconnectedMsg when the connection drops.
func subscribeToEvents(apiURL, apiKey string, afterSeq int64, ch chan<- telemetry.Event) tea.Cmd {
	return func() tea.Msg {
		client := &http.Client{}
		req, err := http.NewRequest("GET", apiURL+"/v1/events/stream", nil)
		if err != nil {
			return errMsg(err)
		}
		if apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+apiKey)
		}
		if afterSeq > 0 {
			req.Header.Set("Last-Event-ID", strconv.FormatInt(afterSeq, 10))
		}

		resp, err := client.Do(req)
		if err != nil {
			return sseDisconnectedMsg{}
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return sseDisconnectedMsg{}
		}

		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			line := scanner.Text()
			if len(line) > 6 && line[:6] == "data: " {
				var ev telemetry.Event
				if err := json.Unmarshal([]byte(line[6:]), &ev); err == nil {
					ch <- ev
				}
			}
		}

		return sseDisconnectedMsg{}
	}
}

// receiveNextEvent waits for the next event from the channel.
func receiveNextEvent(ch <-chan telemetry.Event) tea.Cmd {
	return func() tea.Msg {
		return eventMsg(<-ch)
	}
}

// fetchHealth queries the /healthz endpoint.
func fetchHealth(apiURL, apiKey string) tea.Msg {
	client := &http.Client{Timeout: 2 * time.Second}
	req, err := http.NewRequest("GET", apiURL+"/healthz", nil)
	if err != nil {
		return errMsg(err)
	}
	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := client.Do(req)
	if err != nil {
		return errMsg(err)
	}
	defer resp.Body.Close()

	var h healthMsg
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return errMsg(err)
	}
	return h
}
