package thingspeak

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"

	"channelwatch/internal/domain/entity"
)

// proxyRequestBody is the JSON body posted to the proxy origin. The proxy
// performs the described request on the client's behalf and relays the
// channel/feeds response unchanged.
type proxyRequestBody struct {
	URL    string            `json:"url"`
	Params map[string]string `json:"params"`
}

// doProxyRequest performs one attempt through the proxy transport: an
// HTTP POST carrying the target URL and parameters instead of a direct
// GET. Responses are classified and validated exactly like direct ones.
func (c *Client) doProxyRequest(ctx context.Context, spec fetchSpec) (*entity.ChannelFeed, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	c.status.recordRequest()

	params := make(map[string]string, len(spec.params))
	for key := range spec.params {
		params[key] = spec.params.Get(key)
	}
	body, err := json.Marshal(proxyRequestBody{
		URL:    c.cfg.BaseURL + spec.path,
		Params: params,
	})
	if err != nil {
		return nil, &entity.NetworkError{Kind: entity.NetworkGeneric, Message: "encoding proxy request failed", Err: err}
	}

	httpReq, err := http.NewRequestWithContext(attemptCtx, http.MethodPost, c.cfg.ProxyURL, bytes.NewReader(body))
	if err != nil {
		return nil, &entity.NetworkError{Kind: entity.NetworkGeneric, Message: "building proxy request failed", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &entity.NetworkError{Kind: entity.NetworkGeneric, Message: "proxy request failed", Err: err}
	}
	return decodePayload(resp)
}
