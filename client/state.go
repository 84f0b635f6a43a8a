package client

import (
	"context"
	"errors"
	"slices"
	"sync"

	"github.com/panyam/cookieauth"
)

// EventType names the inputs of the auth state machine.
type EventType string

const (
	EventSignInSuccess EventType = "SIGN_IN_SUCCESS"
	EventSignInFailure EventType = "SIGN_IN_FAILURE"
	EventSignInError   EventType = "SIGN_IN_ERROR"

	// EventRefresh re-reads the session after an action that may have
	// changed it.
	EventRefresh EventType = "REFRESH"
)

type Event struct {
	Type      EventType
	TokenData *cookieauth.TokenData
	Error     string
}

// Action is an API call a user may make from a given state.
type Action string

const (
	ActionSignIn         Action = "signIn"
	ActionSignUp         Action = "signUp"
	ActionSignOut        Action = "signOut"
	ActionConfirmAccount Action = "confirmAccount"
	ActionForgotPassword Action = "forgotPassword"
	ActionResetPassword  Action = "resetPassword"
	ActionChangePassword Action = "changePassword"
)

var ErrActionNotAvailable = errors.New("action not available in current state")

// Initial is the state before the session has been read.
func Initial() cookieauth.AuthState {
	return cookieauth.AuthState{Value: cookieauth.StateAuthenticating}
}

// Reduce is the transition function.  Only authenticating consumes sign in
// events; every other state moves to authenticating on refresh.  Anything
// else leaves the state unchanged.
func Reduce(state cookieauth.AuthState, ev Event) cookieauth.AuthState {
	if state.Value == cookieauth.StateAuthenticating {
		switch ev.Type {
		case EventSignInSuccess:
			if ev.TokenData == nil {
				return cookieauth.SignedOut()
			}
			return cookieauth.SignedIn(*ev.TokenData)
		case EventSignInFailure:
			return cookieauth.SignedOut()
		case EventSignInError:
			msg := ev.Error
			return cookieauth.AuthState{
				Value:   cookieauth.StateSignInError,
				Context: cookieauth.AuthContext{Error: &msg},
			}
		}
		return state
	}
	if ev.Type == EventRefresh {
		return Initial()
	}
	return state
}

// AvailableActions lists the actions allowed in state.
func AvailableActions(state cookieauth.AuthState) []Action {
	switch state.Value {
	case cookieauth.StateSignedIn:
		return []Action{ActionSignOut, ActionChangePassword}
	case cookieauth.StateSignedOut:
		return []Action{ActionSignIn, ActionSignUp, ActionConfirmAccount, ActionForgotPassword, ActionResetPassword}
	}
	return nil
}

// SessionSource reads the server's view of the session.  *AuthClient is one.
type SessionSource interface {
	TokenContent(ctx context.Context) (cookieauth.AuthState, error)
}

// Interpreter runs the state machine: it feeds events through Reduce and
// performs the token content fetch every time authenticating is entered.
type Interpreter struct {
	source SessionSource

	mu        sync.Mutex
	state     cookieauth.AuthState
	listeners map[int]func(cookieauth.AuthState)
	nextID    int
}

func NewInterpreter(source SessionSource) *Interpreter {
	return &Interpreter{
		source:    source,
		state:     Initial(),
		listeners: map[int]func(cookieauth.AuthState){},
	}
}

// State returns the current state.
func (i *Interpreter) State() cookieauth.AuthState {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Subscribe registers fn to be called after every transition.  The returned
// func unregisters it.
func (i *Interpreter) Subscribe(fn func(cookieauth.AuthState)) func() {
	i.mu.Lock()
	defer i.mu.Unlock()
	id := i.nextID
	i.nextID++
	i.listeners[id] = fn
	return func() {
		i.mu.Lock()
		defer i.mu.Unlock()
		delete(i.listeners, id)
	}
}

// Start runs the entry effect of the initial state.
func (i *Interpreter) Start(ctx context.Context) cookieauth.AuthState {
	if i.State().Value == cookieauth.StateAuthenticating {
		i.Send(ctx, i.refetch(ctx))
	}
	return i.State()
}

// Send applies ev and runs any effect of the state it leads to.  It returns
// once the machine is settled.
func (i *Interpreter) Send(ctx context.Context, ev Event) cookieauth.AuthState {
	for {
		prev, next := i.transition(ev)
		if next.Value != cookieauth.StateAuthenticating || prev.Value == cookieauth.StateAuthenticating {
			return next
		}
		ev = i.refetch(ctx)
	}
}

func (i *Interpreter) transition(ev Event) (prev, next cookieauth.AuthState) {
	i.mu.Lock()
	prev = i.state
	next = Reduce(prev, ev)
	i.state = next
	listeners := make([]func(cookieauth.AuthState), 0, len(i.listeners))
	for _, fn := range i.listeners {
		listeners = append(listeners, fn)
	}
	i.mu.Unlock()

	if next.Value != prev.Value {
		for _, fn := range listeners {
			fn(next)
		}
	}
	return prev, next
}

func (i *Interpreter) refetch(ctx context.Context) Event {
	state, err := i.source.TokenContent(ctx)
	if err != nil {
		return Event{Type: EventSignInError, Error: err.Error()}
	}
	if state.IsSignedIn() {
		return Event{Type: EventSignInSuccess, TokenData: state.Context.TokenData}
	}
	return Event{Type: EventSignInFailure}
}

// Perform runs fn if action is available in the current state and refreshes
// the session after it succeeds.
func (i *Interpreter) Perform(ctx context.Context, action Action, fn func(ctx context.Context) error) error {
	if !slices.Contains(AvailableActions(i.State()), action) {
		return ErrActionNotAvailable
	}
	if err := fn(ctx); err != nil {
		return err
	}
	i.Send(ctx, Event{Type: EventRefresh})
	return nil
}
