package client

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"opsline/pkg/model"
)

// LockHeldError reports that a resource is leased by someone else.
type LockHeldError struct {
	OwnerUserID      string
	OwnerDisplayName string
}

func (e *LockHeldError) Error() string {
	return fmt.Sprintf("resource is locked by %s", e.OwnerDisplayName)
}

// LockClientFactory builds lock clients bound to a caller's credential, so
// services acting on behalf of a user lock resources under that user's name.
type LockClientFactory struct {
	BaseURL string
}

func (f *LockClientFactory) For(token string) *LockClient {
	return NewLockClient(f.BaseURL, token)
}

// LockClient talks to the lock manager's HTTP API.
type LockClient struct {
	http *HttpClient
}

func NewLockClient(baseURL, token string) *LockClient {
	return &LockClient{
		http: NewHttpClient(baseURL).WithToken(token),
	}
}

func (c *LockClient) Acquire(ctx context.Context, req *model.AcquireLockRequest) (*model.Lock, error) {
	resp, err := c.http.POST(ctx, "/api/v1/locks/acquire", req)
	if err != nil {
		return nil, fmt.Errorf("acquire request failed: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var out struct {
			Data model.Lock `json:"data"`
		}
		if err := resp.DecodeJSON(&out); err != nil {
			return nil, fmt.Errorf("failed to decode acquire response: %w", err)
		}
		return &out.Data, nil

	case http.StatusConflict:
		var out struct {
			Details struct {
				OwnerUserID      string `json:"owner_user_id"`
				OwnerDisplayName string `json:"owner_display_name"`
			} `json:"details"`
		}
		if err := resp.DecodeJSON(&out); err != nil {
			return nil, fmt.Errorf("failed to decode conflict response: %w", err)
		}
		return nil, &LockHeldError{
			OwnerUserID:      out.Details.OwnerUserID,
			OwnerDisplayName: out.Details.OwnerDisplayName,
		}

	default:
		return nil, fmt.Errorf("acquire failed with status %d: %s", resp.StatusCode, GetErrorMessage(resp))
	}
}

func (c *LockClient) Renew(ctx context.Context, resourceID string, req *model.RenewLockRequest) (*model.Lock, error) {
	path := "/api/v1/locks/id/" + url.PathEscape(resourceID) + "/renew"
	resp, err := c.http.POST(ctx, path, req)
	if err != nil {
		return nil, fmt.Errorf("renew request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("renew failed with status %d: %s", resp.StatusCode, GetErrorMessage(resp))
	}

	var out struct {
		Data model.Lock `json:"data"`
	}
	if err := resp.DecodeJSON(&out); err != nil {
		return nil, fmt.Errorf("failed to decode renew response: %w", err)
	}
	return &out.Data, nil
}

func (c *LockClient) Release(ctx context.Context, resourceID string, req *model.ReleaseLockRequest) error {
	path := "/api/v1/locks/id/" + url.PathEscape(resourceID)
	resp, err := c.http.DELETE(ctx, path, req)
	if err != nil {
		return fmt.Errorf("release request failed: %w", err)
	}

	if resp.StatusCode != http.StatusNoContent {
		return fmt.Errorf("release failed with status %d: %s", resp.StatusCode, GetErrorMessage(resp))
	}
	return nil
}

func (c *LockClient) Status(ctx context.Context, resourceType, resourceID string) (*model.LockStatus, error) {
	path := "/api/v1/locks/id/" + url.PathEscape(resourceID) + "/status?resource_type=" + url.QueryEscape(resourceType)
	resp, err := c.http.GET(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("status request failed: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("status failed with status %d: %s", resp.StatusCode, GetErrorMessage(resp))
	}

	var out struct {
		Data model.LockStatus `json:"data"`
	}
	if err := resp.DecodeJSON(&out); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}
	return &out.Data, nil
}
