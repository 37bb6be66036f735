package oic

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"

	cleanhttp "github.com/hashicorp/go-cleanhttp"
)

// maxResourceSize caps remote JSON documents (discovery, JWKS) at 1 MiB.
const maxResourceSize = 1 << 20

// ResourceRetriever fetches remote JSON documents (discovery documents,
// JWKS) honoring the realm's SSL-verification toggle and the process
// proxy settings. Timeouts on outbound calls are a property of the
// underlying transport.
type ResourceRetriever struct {
	client *http.Client
}

// resourceOptions is the set of available options for NewResourceRetriever
type resourceOptions struct {
	withInsecureSkipVerify bool
	withProxy              func(*http.Request) (*url.URL, error)
}

func resourceDefaults() resourceOptions {
	return resourceOptions{
		withProxy: http.ProxyFromEnvironment,
	}
}

func getResourceOpts(opt ...Option) resourceOptions {
	opts := resourceDefaults()
	ApplyOpts(&opts, opt...)
	return opts
}

// WithInsecureSkipVerify disables TLS certificate verification on
// outbound calls to the provider. Rejected at configuration time when
// restricted-cryptography mode is active.
func WithInsecureSkipVerify() Option {
	return func(o interface{}) {
		if o, ok := o.(*resourceOptions); ok {
			o.withInsecureSkipVerify = true
		}
	}
}

// WithProxy overrides the default proxy-from-environment behavior.
func WithProxy(proxy func(*http.Request) (*url.URL, error)) Option {
	return func(o interface{}) {
		if o, ok := o.(*resourceOptions); ok {
			o.withProxy = proxy
		}
	}
}

// NewResourceRetriever creates a retriever with a pooled transport.
// Supported options: WithInsecureSkipVerify, WithProxy
func NewResourceRetriever(opt ...Option) *ResourceRetriever {
	opts := getResourceOpts(opt...)

	transport := cleanhttp.DefaultPooledTransport()
	transport.Proxy = opts.withProxy
	if opts.withInsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} // #nosec G402 -- operator opt-in
	}
	return &ResourceRetriever{
		client: &http.Client{Transport: transport},
	}
}

// Client returns the http client backing this retriever, suitable for
// handing to the protocol collaborator so the same SSL/proxy policy
// applies to every provider round trip.
func (r *ResourceRetriever) Client() *http.Client {
	return r.client
}

// Get retrieves the document at rawURL.
func (r *ResourceRetriever) Get(ctx context.Context, rawURL string) ([]byte, error) {
	const op = "ResourceRetriever.Get"
	if rawURL == "" {
		return nil, fmt.Errorf("%s: url is empty: %w", op, ErrInvalidParameter)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create request: %w", op, err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s: unexpected status %d from %s: %w", op, resp.StatusCode, rawURL, ErrMetadataFailed)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResourceSize))
	if err != nil {
		return nil, fmt.Errorf("%s: unable to read response: %w", op, err)
	}
	return body, nil
}
