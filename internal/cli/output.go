package cli

import (
	"encoding/json"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"

	authclient "github.com/goliatone/go-authclient"
)

func (a *app) printJSON(v any) error {
	if !a.noColor {
		_, err := fmt.Fprint(a.out, print.MaybePrettyJSON(v))
		return err
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(a.out, string(data))
	return err
}

func (a *app) printMessage(msg string) {
	if msg != "" {
		fmt.Fprintln(a.out, msg)
	}
}

// report prints the outcome of an operation and turns failures into errors
// carrying the user facing message.
func report[T any](a *app, res authclient.Result[T], data any) error {
	if !res.Success {
		if res.Err == nil {
			return goerrors.New(res.Message, goerrors.CategoryOperation)
		}
		return goerrors.Wrap(res.Err, goerrors.CategoryOperation, res.Message)
	}
	a.printMessage(res.Message)
	if data == nil {
		return nil
	}
	return a.printJSON(data)
}

// sessionView is the printable form of the current session.
type sessionView struct {
	Status        string           `json:"status"`
	Authenticated bool             `json:"authenticated"`
	UserID        string           `json:"user_id,omitempty"`
	Email         string           `json:"email,omitempty"`
	Verified      bool             `json:"verified"`
	ExpiresAt     string           `json:"expires_at,omitempty"`
	User          *authclient.User `json:"user,omitempty"`
}

func viewOf(state authclient.AuthState) sessionView {
	v := sessionView{
		Status:        state.Status.String(),
		Authenticated: state.IsAuthenticated(),
		User:          state.User,
	}
	if state.User != nil {
		v.UserID = state.User.ID
		v.Email = state.User.Email
		v.Verified = state.User.IsVerified()
	}
	if state.Session != nil && !state.Session.ExpiresAt.IsZero() {
		v.ExpiresAt = state.Session.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z07:00")
	}
	return v
}
