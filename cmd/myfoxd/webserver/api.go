// Package webserver implements a few simple HTTP endpoints to read the state of
// a Myfox site and run actions on it.
package webserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/bartekpacia/myfox/api"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/crypto/bcrypt"
)

const (
	passphrasePrefix = "Passphrase: "
	shutdownTimeout  = 5 * time.Second
	maxBodyBytes     = 1 << 16
)

type API struct {
	wrapper        api.Wrapper
	passphraseHash []byte
	metrics        http.Handler
	upgrader       websocket.Upgrader
}

// New returns the API of wrapper. Requests to /api/ must carry a passphrase
// matching passphraseHash unless it is empty. metrics is served on /metrics
// when not nil.
func New(wrapper api.Wrapper, passphraseHash string, metrics http.Handler) *API {
	return &API{
		wrapper:        wrapper,
		passphraseHash: []byte(passphraseHash),
		metrics:        metrics,
	}
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/state", a.getState)
	mux.HandleFunc("POST /api/scenarios/{id}/{action}", macroHandler(
		func(id int, action string, delayMS int) api.ScenarioAction {
			return api.ScenarioAction{ID: id, Action: action, DelayMS: delayMS}
		},
		a.wrapper.CallScenarioAction,
	))
	mux.HandleFunc("POST /api/domotics/{id}/{action}", macroHandler(
		func(id int, action string, delayMS int) api.DomoticAction {
			return api.DomoticAction{ID: id, Action: action, DelayMS: delayMS}
		},
		a.wrapper.CallDomoticAction,
	))
	mux.HandleFunc("POST /api/heatings/{id}/{action}", macroHandler(
		func(id int, action string, delayMS int) api.HeatingAction {
			return api.HeatingAction{ID: id, Action: action, DelayMS: delayMS}
		},
		a.wrapper.CallHeatingAction,
	))
	mux.HandleFunc("POST /api/alarm/{action}", a.alarmAction)
	mux.HandleFunc("GET /api/macros/ws", a.watchMacros)

	root := http.NewServeMux()
	if len(a.passphraseHash) == 0 {
		slog.Warn("API passphrase is not set, the API is open to anyone")
		root.Handle("/api/", mux)
	} else {
		root.Handle("/api/", withPassphrase(mux, a.passphraseHash))
	}
	if a.metrics != nil {
		root.Handle("GET /metrics", a.metrics)
	}

	return withRequestID(root)
}

func (a *API) Run(ctx context.Context, port int) error {
	addr := fmt.Sprint("0.0.0.0:", port)
	httpServer := http.Server{Addr: addr, Handler: a.Handler()}

	errs := make(chan error, 2)
	go func() {
		slog.Info("server will listen and serve", "addr", fmt.Sprint("http://", addr))
		err := httpServer.ListenAndServe()
		if errors.Is(err, http.ErrServerClosed) {
			errs <- nil
		} else {
			slog.Warn("http server's 'listen and serve' failed", slog.Any("error", err))
			errs <- err
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		errs <- httpServer.Shutdown(shutdownCtx)
	}()

	return <-errs
}

func (a *API) getState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, a.wrapper.State().Snapshot())
}

type macroRequest[A any] struct {
	// ID of the macro, generated when empty.
	ID    string `json:"id"`
	Delay int    `json:"delay"`
	Then  []A    `json:"then"`
}

type macroCall[A any] func(ctx context.Context, first A, done api.CompletionFunc, macroID string, next ...A) error

// macroHandler runs the action in the path, then the actions of the optional
// request body. It responds with the outcome of the first action.
func macroHandler[A any](build func(id int, action string, delayMS int) A, call macroCall[A]) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := api.ParseActionID(r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}

		var body macroRequest[A]
		if err := decodeBody(w, r, &body); err != nil {
			writeError(w, api.WithStatus(err, http.StatusBadRequest))
			return
		}

		first := build(id, r.PathValue("action"), body.Delay)
		respond(w, r, func(done api.CompletionFunc) error {
			return call(r.Context(), first, done, body.ID, body.Then...)
		})
	}
}

type alarmRequest struct {
	Password string `json:"password"`
}

func (a *API) alarmAction(w http.ResponseWriter, r *http.Request) {
	var body alarmRequest
	if err := decodeBody(w, r, &body); err != nil {
		writeError(w, api.WithStatus(err, http.StatusBadRequest))
		return
	}

	action := api.AlarmAction{Action: r.PathValue("action"), Password: body.Password}
	respond(w, r, func(done api.CompletionFunc) error {
		return a.wrapper.CallAlarmLevelAction(r.Context(), action, done)
	})
}

type macroMessage struct {
	api.MacroEvent
	At time.Time `json:"at"`
}

// watchMacros streams macro steps over a websocket until the client leaves.
func (a *API) watchMacros(w http.ResponseWriter, r *http.Request) {
	conn, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Warn("failed to upgrade connection", slog.Any("error", err))
		return
	}
	defer conn.Close()

	events := make(chan macroMessage, 16)
	closed := make(chan struct{})

	listener := api.MacroListener(func(id string, data any, state api.MacroState, remaining int, at time.Time) bool {
		select {
		case <-closed:
			return false
		default:
		}

		msg := macroMessage{MacroEvent: api.MacroEvent{ID: id, Data: data, State: state, Remaining: remaining}, At: at}
		select {
		case events <- msg:
		default:
			slog.Warn("dropping macro step for slow client", slog.String("macro_id", id))
		}
		return true
	})
	a.wrapper.AddMacroListener(&listener)
	defer a.wrapper.RemoveMacroListener(&listener)

	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			return
		case msg := <-events:
			if err := conn.WriteJSON(msg); err != nil {
				slog.Debug("failed to write macro step", slog.Any("error", err))
				return
			}
		}
	}
}

type completion struct {
	err error
	ev  api.MacroEvent
}

func respond(w http.ResponseWriter, r *http.Request, start func(api.CompletionFunc) error) {
	result := make(chan completion, 1)
	err := start(func(err error, ev api.MacroEvent) {
		result <- completion{err: err, ev: ev}
	})
	if err != nil {
		writeError(w, err)
		return
	}

	select {
	case c := <-result:
		if c.err != nil {
			writeError(w, c.err)
			return
		}
		writeJSON(w, http.StatusOK, c.ev)
	case <-r.Context().Done():
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("decode body: %w", err)
	}
	return nil
}

func writeError(w http.ResponseWriter, err error) {
	status := api.Status(err)

	var verr *api.ValidationError
	if errors.As(err, &verr) {
		status = http.StatusBadRequest
	}
	if status == 0 && errors.Is(err, api.ErrUnsupported) {
		status = http.StatusNotImplemented
	}
	if status == 0 {
		status = http.StatusInternalServerError
	}

	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.Any("error", err))
	}
}

func withPassphrase(next http.Handler, hash []byte) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		passphrase, ok := strings.CutPrefix(header, passphrasePrefix)
		if !ok || bcrypt.CompareHashAndPassword(hash, []byte(passphrase)) != nil {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)

		slog.Info("got request",
			slog.String("request_id", id),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
		)
		next.ServeHTTP(w, r)
	})
}
