package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"go-chat-relay/internal/chat"
	"go-chat-relay/internal/user"
)

type loadTest struct {
	baseURL  string
	wsURL    string
	messages int
	log      zerolog.Logger

	sent     atomic.Int64
	received atomic.Int64
	errors   atomic.Int64
}

func main() {
	baseURL := flag.String("url", "http://localhost:8080", "server base URL")
	pairs := flag.Int("pairs", 50, "number of user pairs")
	messages := flag.Int("messages", 20, "messages per user")
	flag.Parse()

	lt := &loadTest{
		baseURL:  strings.TrimRight(*baseURL, "/"),
		wsURL:    "ws" + strings.TrimPrefix(strings.TrimRight(*baseURL, "/"), "http") + "/ws",
		messages: *messages,
		log:      zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger(),
	}

	run := uuid.NewString()[:8]
	lt.log.Info().Int("users", *pairs*2).Int("messages", *messages).Str("run", run).Msg("🔥 STARTING STRESS TEST")
	start := time.Now()

	// We will create pairs: User 0 talks to User 1, User 2 talks to User 3...
	var wg sync.WaitGroup
	for i := 0; i < *pairs; i++ {
		wg.Add(1)
		go func(pairID int) {
			defer wg.Done()
			lt.runPair(run, pairID)
		}(i)
	}
	wg.Wait()

	lt.log.Info().
		Int64("sent", lt.sent.Load()).
		Int64("received", lt.received.Load()).
		Int64("errors", lt.errors.Load()).
		Dur("elapsed", time.Since(start)).
		Msg("✅ LOAD TEST COMPLETE")
}

func (lt *loadTest) runPair(run string, pairID int) {
	userA := fmt.Sprintf("lt_%s_%d_a", run, pairID)
	userB := fmt.Sprintf("lt_%s_%d_b", run, pairID)
	pass := "password123"

	a, err := lt.authenticate(userA, pass)
	if err != nil {
		lt.fail(err, userA, "auth failed")
		return
	}
	b, err := lt.authenticate(userB, pass)
	if err != nil {
		lt.fail(err, userB, "auth failed")
		return
	}

	convID, err := lt.createConversation(a.AccessToken, b.ID)
	if err != nil {
		lt.fail(err, userA, "create chat failed")
		return
	}

	var wsWg sync.WaitGroup
	wsWg.Add(2)
	go lt.chat(&wsWg, a.AccessToken, convID, userA)
	go lt.chat(&wsWg, b.AccessToken, convID, userB)
	wsWg.Wait()
}

// authenticate registers (a taken username is fine) and logs in.
func (lt *loadTest) authenticate(username, password string) (*user.LoginResponse, error) {
	creds := map[string]string{"username": username, "password": password}
	if resp, err := lt.postJSON("/register", "", creds); err == nil {
		resp.Body.Close()
	}

	resp, err := lt.postJSON("/login", "", creds)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("login: status %d", resp.StatusCode)
	}

	var data user.LoginResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

func (lt *loadTest) createConversation(token string, targetID int) (int, error) {
	resp, err := lt.postJSON("/api/conversations", token, map[string]int{"target_id": targetID})
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("create conversation: status %d", resp.StatusCode)
	}

	var data struct {
		ID int `json:"conversation_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return 0, err
	}
	return data.ID, nil
}

func (lt *loadTest) chat(wg *sync.WaitGroup, token string, convID int, username string) {
	defer wg.Done()

	conn, _, err := websocket.DefaultDialer.Dial(lt.wsURL+"?token="+token, nil)
	if err != nil {
		lt.fail(err, username, "ws connect failed")
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var env chat.Envelope
			if json.Unmarshal(raw, &env) == nil && env.Type == chat.EventReceiveMessage {
				lt.received.Add(1)
			}
		}
	}()

	if err := lt.send(conn, chat.EventJoinRoom, chat.RoomPayload{RoomID: string(chat.ConversationRoom(convID))}); err != nil {
		lt.fail(err, username, "join failed")
		return
	}

	for i := 0; i < lt.messages; i++ {
		err := lt.send(conn, chat.EventSendMessage, chat.SendMessagePayload{
			ConversationID: convID,
			Content:        fmt.Sprintf("LoadTest Msg %d from %s", i, username),
		})
		if err != nil {
			lt.fail(err, username, "send failed")
			break
		}
		lt.sent.Add(1)
		// Small sleep to prevent instant localhost bottleneck (simulate real network)
		time.Sleep(10 * time.Millisecond)
	}

	// Give the tail of the fan-out time to arrive before closing.
	time.Sleep(time.Second)
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	select {
	case <-done:
	case <-time.After(2 * time.Second):
	}
	lt.log.Debug().Str("user", username).Int("messages", lt.messages).Msg("finished sending")
}

func (lt *loadTest) send(conn *websocket.Conn, eventType string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return conn.WriteJSON(chat.Envelope{Type: eventType, Data: data})
}

func (lt *loadTest) postJSON(endpoint, token string, data interface{}) (*http.Response, error) {
	body, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequest(http.MethodPost, lt.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return http.DefaultClient.Do(req)
}

func (lt *loadTest) fail(err error, username, msg string) {
	lt.errors.Add(1)
	lt.log.Error().Err(err).Str("user", username).Msg("❌ " + msg)
}
