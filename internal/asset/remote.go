package asset

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hbomb79/Marquee/pkg/logger"
	"github.com/mitchellh/mapstructure"
)

const remoteAssetsPath = "/assets"

var errNoEnvelope = errors.New("no response envelope")

type (
	// RemoteRegistrar is a Catalog backed by a remote HTTP catalog API:
	//   - POST {base}/assets registers a record, replying {success, message, error}
	//   - GET {base}/assets lists assets, replying {success, message, count, data}
	//   - GET {base}/assets?title= replies with a single asset as 'data', or 404
	RemoteRegistrar struct {
		baseURL string
		client  *http.Client
	}

	catalogResponse struct {
		Success bool
		Message string
		Error   string
		Count   int
		Data    any
	}
)

func NewRemoteRegistrar(baseURL string, timeout time.Duration) *RemoteRegistrar {
	return NewRemoteRegistrarWithClient(baseURL, &http.Client{Timeout: timeout})
}

func NewRemoteRegistrarWithClient(baseURL string, client *http.Client) *RemoteRegistrar {
	return &RemoteRegistrar{strings.TrimRight(baseURL, "/"), client}
}

func (registrar *RemoteRegistrar) Register(ctx context.Context, record Record) Registration {
	body, err := json.Marshal(record)
	if err != nil {
		return failedRegistration("Failed to encode asset", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, registrar.baseURL+remoteAssetsPath, bytes.NewReader(body))
	if err != nil {
		return failedRegistration("Failed to construct catalog request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	status, resp, err := registrar.do(req)
	if errors.Is(err, errNoEnvelope) && isSuccessStatus(status) {
		// The catalog accepted the asset but did not describe the outcome.
		log.Emit(logger.WARNING, "Remote catalog accepted asset %q without a response envelope: %v\n", record.Title, err)
		return Registration{Success: true, Message: http.StatusText(status)}
	} else if err != nil {
		log.Emit(logger.ERROR, "Failed to register asset %q with remote catalog: %v\n", record.Title, err)
		return failedRegistration("Failed to reach catalog", err)
	}

	registration := Registration{Success: resp.Success, Message: resp.Message, Error: resp.Error}
	if status >= http.StatusBadRequest && registration.Success {
		registration.Success = false
	}
	if !registration.Success && registration.Error == "" {
		registration.Error = fmt.Sprintf("catalog rejected asset (HTTP %d)", status)
	}

	if registration.Success {
		log.Emit(logger.SUCCESS, "Registered asset %q with remote catalog\n", record.Title)
	} else {
		log.Emit(logger.ERROR, "Remote catalog rejected asset %q: %s\n", record.Title, registration.Error)
	}
	return registration
}

func (registrar *RemoteRegistrar) List(ctx context.Context) ([]*Asset, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, registrar.baseURL+remoteAssetsPath, nil)
	if err != nil {
		return nil, err
	}

	status, resp, err := registrar.do(req)
	if err != nil {
		return nil, err
	} else if status != http.StatusOK || !resp.Success {
		return nil, fmt.Errorf("catalog failed to list assets (HTTP %d): %s", status, resp.reason())
	}

	assets := make([]*Asset, 0)
	if resp.Data == nil {
		return assets, nil
	}
	if err := decodeAssets(resp.Data, &assets); err != nil {
		return nil, fmt.Errorf("catalog returned malformed asset list: %w", err)
	}

	return assets, nil
}

func (registrar *RemoteRegistrar) GetByTitle(ctx context.Context, title string) (*Asset, error) {
	endpoint := registrar.baseURL + remoteAssetsPath + "?" + url.Values{"title": {title}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	status, resp, err := registrar.do(req)
	if status == http.StatusNotFound {
		return nil, ErrAssetNotFound
	} else if err != nil {
		return nil, err
	} else if status == http.StatusOK && resp.Data == nil {
		return nil, ErrAssetNotFound
	} else if status != http.StatusOK || !resp.Success {
		return nil, fmt.Errorf("catalog failed to find asset %s (HTTP %d): %s", title, status, resp.reason())
	}

	var asset Asset
	if err := decodeAssets(resp.Data, &asset); err != nil {
		return nil, fmt.Errorf("catalog returned malformed asset: %w", err)
	}

	return &asset, nil
}

// do performs the request and decodes the catalog's response envelope. A
// response body which is empty or not a JSON object is reported as
// errNoEnvelope, regardless of the status code.
func (registrar *RemoteRegistrar) do(req *http.Request) (int, *catalogResponse, error) {
	resp, err := registrar.client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read catalog response: %w", err)
	}

	if len(bytes.TrimSpace(body)) == 0 {
		return resp.StatusCode, nil, fmt.Errorf("%w: catalog responded with HTTP %d and an empty body", errNoEnvelope, resp.StatusCode)
	}

	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		return resp.StatusCode, nil, fmt.Errorf("%w: catalog responded with HTTP %d and a non-JSON body: %q", errNoEnvelope, resp.StatusCode, truncate(string(body), 256))
	}

	// Field names are matched case-insensitively ("message" and "Message" are both accepted)
	var envelope catalogResponse
	if err := mapstructure.WeakDecode(raw, &envelope); err != nil {
		return resp.StatusCode, nil, fmt.Errorf("catalog response envelope could not be decoded: %w", err)
	}

	return resp.StatusCode, &envelope, nil
}

func (resp *catalogResponse) reason() string {
	if resp.Error != "" {
		return resp.Error
	}
	return resp.Message
}

func decodeAssets(input any, output any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.ComposeDecodeHookFunc(
			stringToUUIDHookFunc(),
			mapstructure.StringToTimeHookFunc(time.RFC3339),
		),
		WeaklyTypedInput: true,
		Squash:           true,
		TagName:          "json",
		Result:           output,
	})
	if err != nil {
		return err
	}

	return decoder.Decode(input)
}

func stringToUUIDHookFunc() mapstructure.DecodeHookFuncType {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to != reflect.TypeOf(uuid.UUID{}) {
			return data, nil
		}

		return uuid.Parse(data.(string))
	}
}

func isSuccessStatus(status int) bool {
	return status >= http.StatusOK && status < http.StatusMultipleChoices
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
