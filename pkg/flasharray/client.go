package flasharray

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"

	"github.com/purestorage-openconnect/hanasnap/pkg/errors"
)

const apiVersion = "1.19"

// Client talks to one FlashArray over its REST API. The session cookie
// obtained at login is carried in the client's cookie jar.
type Client struct {
	base string
	http *http.Client
}

// NewClient establishes an authenticated session against the array at
// endpoint (hostname or IP). Arrays commonly serve self-signed
// certificates, so insecure skips TLS verification when set.
func NewClient(ctx context.Context, endpoint, username, password string, insecure bool) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, errors.Wrap(err, "cookie jar failed")
	}

	transport := http.DefaultTransport
	if insecure {
		transport = &http.Transport{TLSClientConfig: &tls.Config{InsecureSkipVerify: true}}
	}

	c := &Client{
		base: fmt.Sprintf("https://%s/api/%s", endpoint, apiVersion),
		http: &http.Client{Jar: jar, Transport: transport},
	}

	slog.Info("array_session_start", "endpoint", endpoint, "user", username)

	var token struct {
		APIToken string `json:"api_token"`
	}
	err = c.do(ctx, http.MethodPost, "/auth/apitoken",
		map[string]string{"username": username, "password": password}, &token)
	if err != nil {
		return nil, errors.WithKind(errors.KindAuthentication, err)
	}

	err = c.do(ctx, http.MethodPost, "/auth/session",
		map[string]string{"api_token": token.APIToken}, nil)
	if err != nil {
		return nil, errors.WithKind(errors.KindAuthentication, err)
	}

	slog.Info("array_session_ready", "endpoint", endpoint)
	return c, nil
}

// Close ends the REST session.
func (c *Client) Close(ctx context.Context) error {
	return c.do(ctx, http.MethodDelete, "/auth/session", nil, nil)
}

// ListVolumes enumerates all volumes on the array.
func (c *Client) ListVolumes(ctx context.Context) ([]Volume, error) {
	var vols []Volume
	if err := c.do(ctx, http.MethodGet, "/volume", nil, &vols); err != nil {
		return nil, errors.Wrap(err, "volume enumeration failed")
	}
	return vols, nil
}

// CreateVolumeSnapshot snapshots a single volume with the given suffix.
func (c *Client) CreateVolumeSnapshot(ctx context.Context, volume, suffix string) (*Snapshot, error) {
	slog.Info("array_volume_snapshot", "volume", volume, "suffix", suffix)

	body := map[string]any{"snap": true, "source": []string{volume}, "suffix": suffix}
	var snaps []Snapshot
	if err := c.do(ctx, http.MethodPost, "/volume", body, &snaps); err != nil {
		return nil, errors.Wrap(err, "volume snapshot failed")
	}
	if len(snaps) == 0 {
		return nil, nil
	}
	return &snaps[0], nil
}

// GetProtectionGroup looks up a group by name. An absent group is the
// expected not-found case and returns (nil, nil), not an error.
func (c *Client) GetProtectionGroup(ctx context.Context, name string) (*ProtectionGroup, error) {
	var pg ProtectionGroup
	err := c.do(ctx, http.MethodGet, "/pgroup/"+url.PathEscape(name), nil, &pg)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, errors.Wrap(err, "protection group lookup failed")
	}
	return &pg, nil
}

// CreateProtectionGroup creates an empty group.
func (c *Client) CreateProtectionGroup(ctx context.Context, name string) (*ProtectionGroup, error) {
	slog.Info("array_pgroup_create", "name", name)

	var pg ProtectionGroup
	if err := c.do(ctx, http.MethodPost, "/pgroup/"+url.PathEscape(name), nil, &pg); err != nil {
		return nil, errors.Wrap(err, "protection group creation failed")
	}
	return &pg, nil
}

// CreateProtectionGroupSnapshot snapshots every member of the group at
// once.
func (c *Client) CreateProtectionGroupSnapshot(ctx context.Context, name, suffix string) (*Snapshot, error) {
	slog.Info("array_pgroup_snapshot", "name", name, "suffix", suffix)

	body := map[string]any{"snap": true, "source": []string{name}, "suffix": suffix}
	var snaps []Snapshot
	if err := c.do(ctx, http.MethodPost, "/pgroup", body, &snaps); err != nil {
		return nil, errors.Wrap(err, "protection group snapshot failed")
	}
	if len(snaps) == 0 {
		return nil, nil
	}
	return &snaps[0], nil
}

// ListVolumeProtectionGroups returns the names of the groups the volume is
// a member of.
func (c *Client) ListVolumeProtectionGroups(ctx context.Context, volume string) ([]string, error) {
	var memberships []struct {
		Name string `json:"name"`
	}
	err := c.do(ctx, http.MethodGet, "/volume/"+url.PathEscape(volume)+"/pgroup", nil, &memberships)
	if err != nil {
		return nil, errors.Wrap(err, "membership enumeration failed")
	}

	names := make([]string, 0, len(memberships))
	for _, m := range memberships {
		names = append(names, m.Name)
	}
	return names, nil
}

// AddVolume adds a volume to a group.
func (c *Client) AddVolume(ctx context.Context, group, volume string) error {
	slog.Info("array_pgroup_add_volume", "group", group, "volume", volume)

	body := map[string]any{"addvollist": []string{volume}}
	err := c.do(ctx, http.MethodPut, "/pgroup/"+url.PathEscape(group), body, nil)
	return errors.Wrap(err, "membership add failed")
}

// apiError is a non-2xx response from the array.
type apiError struct {
	Status int
	Body   string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("array returned %d: %s", e.Status, e.Body)
}

func isNotFound(err error) bool {
	var ae *apiError
	if !stderrors.As(err, &ae) {
		return false
	}
	return ae.Status == http.StatusBadRequest && strings.Contains(ae.Body, "does not exist")
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "request encoding failed")
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return errors.Wrap(err, "request build failed")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return errors.WithKind(errors.KindConnectivity, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "response read failed")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &apiError{Status: resp.StatusCode, Body: strings.TrimSpace(string(data))}
	}

	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return errors.WithKind(errors.KindParse, err)
		}
	}
	return nil
}
