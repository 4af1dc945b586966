package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"snda-portal/internal/app"
	"snda-portal/internal/domain"
	"snda-portal/internal/realtime"
	"snda-portal/internal/service"

	"github.com/spf13/pflag"
)

func newFlagSet(e *env, name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet("portal "+name, pflag.ContinueOnError)
	fs.SetOutput(e.stderr)
	return fs
}

func openSession(ctx context.Context, e *env) (*app.Session, error) {
	return app.Bootstrap(ctx, e.cfg,
		service.WithNavigator(service.LogNavigator{}),
		service.WithNotifier(service.NotifierFunc(func(msg string) {
			fmt.Fprintln(e.stderr, msg)
		})),
	)
}

func runLogin(ctx context.Context, e *env, args []string) error {
	var user, password string
	var passwordStdin bool

	fs := newFlagSet(e, "login")
	fs.StringVarP(&user, "user", "u", "", "username or email")
	fs.StringVarP(&password, "password", "p", "", "password (prefer --password-stdin)")
	fs.BoolVar(&passwordStdin, "password-stdin", false, "read the password from stdin")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if passwordStdin {
		line, err := bufio.NewReader(e.stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read password: %w", err)
		}
		password = strings.TrimRight(line, "\r\n")
	}

	sess, err := openSession(ctx, e)
	if err != nil {
		return err
	}
	defer sess.Close()

	profile, err := sess.Manager.Login(ctx, user, password)
	if err != nil {
		return err
	}
	fmt.Fprintf(e.stdout, "Logged in as %s\n", profile.DisplayName())
	return nil
}

func runLogout(ctx context.Context, e *env, args []string) error {
	if err := newFlagSet(e, "logout").Parse(args); err != nil {
		return err
	}

	sess, err := openSession(ctx, e)
	if err != nil {
		return err
	}
	defer sess.Close()

	sess.Manager.Logout(ctx)
	fmt.Fprintln(e.stdout, "Logged out")
	return nil
}

func runWhoami(ctx context.Context, e *env, args []string) error {
	var asJSON bool

	fs := newFlagSet(e, "whoami")
	fs.BoolVar(&asJSON, "json", false, "print the profile as JSON")
	if err := fs.Parse(args); err != nil {
		return err
	}

	sess, err := openSession(ctx, e)
	if err != nil {
		return err
	}
	defer sess.Close()

	sess.Manager.Restore(ctx)
	user := sess.Manager.CurrentUser()
	if user == nil {
		return &exitError{code: 1, err: domain.ErrNotAuthenticated}
	}

	if asJSON {
		enc := json.NewEncoder(e.stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(user)
	}
	fmt.Fprintf(e.stdout, "%s (%s)\n", user.DisplayName(), user.Username)
	if user.Email != "" {
		fmt.Fprintf(e.stdout, "email: %s\n", user.Email)
	}
	var roles []string
	if user.IsCoordinator {
		roles = append(roles, "coordinator")
	}
	if user.IsVolunteer {
		roles = append(roles, "volunteer")
	}
	if len(roles) > 0 {
		fmt.Fprintf(e.stdout, "roles: %s\n", strings.Join(roles, ", "))
	}
	return nil
}

func runFetch(ctx context.Context, e *env, args []string) error {
	var method, data string

	fs := newFlagSet(e, "fetch")
	fs.StringVarP(&method, "method", "X", http.MethodGet, "HTTP method")
	fs.StringVarP(&data, "data", "d", "", "JSON request body")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return &exitError{code: 2, err: errors.New("fetch takes exactly one path")}
	}

	sess, err := openSession(ctx, e)
	if err != nil {
		return err
	}
	defer sess.Close()

	var body any
	if data != "" {
		if !json.Valid([]byte(data)) {
			return &exitError{code: 2, err: fmt.Errorf("--data is not valid JSON: %w", domain.ErrInvalidInput)}
		}
		body = []byte(data)
	}

	resp, err := sess.Manager.Fetch(ctx, strings.ToUpper(method), fs.Arg(0), body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(e.stdout, resp.Body); err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	return nil
}

func runWatch(ctx context.Context, e *env, args []string) error {
	fs := newFlagSet(e, "watch")
	if err := fs.Parse(args); err != nil {
		return err
	}
	path := e.cfg.FeedPath
	if fs.NArg() > 0 {
		path = fs.Arg(0)
	}

	sess, err := openSession(ctx, e)
	if err != nil {
		return err
	}
	defer sess.Close()

	sess.Manager.Restore(ctx)

	header := http.Header{}
	if token, ok := sess.Manager.AccessToken(ctx); ok {
		header.Set("Authorization", "Bearer "+token)
	}

	out := json.NewEncoder(e.stdout)
	ch := realtime.Dial(ctx, path, func(msg domain.FeedMessage) {
		if story, ok := msg.ExtractStory(); ok {
			_ = out.Encode(story)
		}
	},
		realtime.WithOrigin(e.cfg.APIBaseURL),
		realtime.WithFallbackOrigin(e.cfg.PublicOrigin),
		realtime.WithHeader(header),
	)
	defer ch.Close()

	fmt.Fprintf(e.stderr, "watching %s (ctrl-c to stop)\n", ch.URL())
	<-ctx.Done()
	return nil
}
