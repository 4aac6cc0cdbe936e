package auth

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http/cookiejar"
	"net/url"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

const (
	defaultBaseURL = "https://api.traderepublic.com"
	userAgent      = "TradeRepublic/Android 30/App Version 1.1.5534"

	loginPath = "/api/v1/auth/web/login"
)

var (
	ErrInvalidPhone = errors.New("invalid phone number, use the international format like +4915512345678")
	ErrInvalidPIN   = errors.New("invalid PIN, expected 4 digits")

	phonePattern = regexp.MustCompile(`^\+[1-9]\d{1,14}$`)
	pinPattern   = regexp.MustCompile(`^\d{4}$`)
)

// Session is an authenticated web login: the cookie header the WebSocket
// dial presents.
type Session struct {
	CookieHeader string
}

// CodePrompter asks the user for the 4-digit code the service pushed to
// their device. Injected so tests and the faker flow need no terminal.
type CodePrompter func() (string, error)

// StdinPrompter reads the code interactively.
func StdinPrompter() (string, error) {
	fmt.Println("Enter the 4-digit code from the TradeRepublic app or SMS:")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading code: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// Manager drives the two-step web login flow against the REST API and
// captures the session cookies it sets.
type Manager struct {
	client  *resty.Client
	jar     *cookiejar.Jar
	baseURL string
	prompt  CodePrompter
	logger  *zap.Logger
}

func NewManager(baseURL string, prompt CodePrompter, logger *zap.Logger) (*Manager, error) {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	baseURL = strings.TrimRight(baseURL, "/")

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetCookieJar(jar).
		SetHeader("User-Agent", userAgent)

	return &Manager{
		client:  client,
		jar:     jar,
		baseURL: baseURL,
		prompt:  prompt,
		logger:  logger,
	}, nil
}

// Login validates the credentials, initiates the login, prompts for the
// verification code and completes the flow. The returned session carries
// everything the WebSocket handshake needs.
func (m *Manager) Login(ctx context.Context, phoneNo, pin string) (*Session, error) {
	if !phonePattern.MatchString(phoneNo) {
		return nil, ErrInvalidPhone
	}
	if !pinPattern.MatchString(pin) {
		return nil, ErrInvalidPIN
	}

	processID, err := m.initiate(ctx, phoneNo, pin)
	if err != nil {
		return nil, err
	}
	m.logger.Info("login initiated, verification code requested")

	code, err := m.prompt()
	if err != nil {
		return nil, fmt.Errorf("reading verification code: %w", err)
	}
	if err := m.complete(ctx, processID, code); err != nil {
		return nil, err
	}

	header := m.cookieHeader()
	if header == "" {
		return nil, errors.New("login succeeded but the service set no session cookies")
	}

	m.logger.Info("web login successful")
	return &Session{CookieHeader: header}, nil
}

func (m *Manager) initiate(ctx context.Context, phoneNo, pin string) (string, error) {
	resp, err := m.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(map[string]string{"phoneNumber": phoneNo, "pin": pin}).
		Post(loginPath)
	if err != nil {
		return "", fmt.Errorf("login request: %w", err)
	}
	if resp.IsError() {
		return "", decodeAPIError("web login failed", resp)
	}

	var body struct {
		ProcessID string `json:"processId"`
	}
	if err := json.Unmarshal(resp.Body(), &body); err != nil {
		return "", fmt.Errorf("decoding login response: %w", err)
	}
	if body.ProcessID == "" {
		return "", fmt.Errorf("no processId in login response: %s", resp.Body())
	}
	return body.ProcessID, nil
}

func (m *Manager) complete(ctx context.Context, processID, code string) error {
	resp, err := m.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		Post(loginPath + "/" + url.PathEscape(processID) + "/" + url.PathEscape(code))
	if err != nil {
		return fmt.Errorf("code verification request: %w", err)
	}
	if resp.IsError() {
		return decodeAPIError("code verification failed", resp)
	}
	return nil
}

// cookieHeader flattens the session cookies into one header value for the
// WebSocket dial.
func (m *Manager) cookieHeader() string {
	u, err := url.Parse(m.baseURL)
	if err != nil {
		return ""
	}

	cookies := m.jar.Cookies(u)
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	return strings.Join(parts, "; ")
}
