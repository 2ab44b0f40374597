package thingspeak

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"channelwatch/internal/domain/entity"
)

// maxErrorBodyBytes bounds how much of an error response body is read for
// the error message.
const maxErrorBodyBytes = 512

// validateCredentials fails fast on missing channel or key. These are
// local validation failures and never reach the network.
func validateCredentials(channelID, apiKey string) error {
	if strings.TrimSpace(channelID) == "" {
		return &entity.ValidationError{Field: "channelId", Message: "must not be empty"}
	}
	if strings.TrimSpace(apiKey) == "" {
		return &entity.ValidationError{Field: "apiKey", Message: "must not be empty"}
	}
	return nil
}

// decodePayload turns an HTTP response into a validated payload.
// Non-2xx statuses are classified by code; a body that does not describe
// a channel is an InvalidResponseError, a failure of the attempt rather
// than a success with bad data.
func decodePayload(resp *http.Response) (*entity.ChannelFeed, error) {
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		message := strings.TrimSpace(string(snippet))
		if message == "" {
			message = resp.Status
		}
		return nil, entity.ClassifyStatus(resp.StatusCode, message)
	}

	var payload entity.ChannelFeed
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, &entity.InvalidResponseError{Reason: fmt.Sprintf("decoding body: %v", err)}
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	return &payload, nil
}

// outcomeLabel maps an attempt error to a metrics label.
func outcomeLabel(err error) string {
	var netErr *entity.NetworkError
	if errors.As(err, &netErr) {
		return netErr.Kind.String()
	}
	var invalidErr *entity.InvalidResponseError
	if errors.As(err, &invalidErr) {
		return "invalid_response"
	}
	return "generic"
}
