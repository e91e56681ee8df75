package fetch

// FetchOption overrides a single fetch call's default behavior. Most
// callers (the Router's default path) pass none and get the configured
// defaults; call sites that need finer control reach for these directly.
type FetchOption func(*fetchOptions)

type fetchOptions struct {
	noCache      bool
	waitSelector string
}

func applyFetchOptions(opts []FetchOption) fetchOptions {
	o := fetchOptions{waitSelector: "body"}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithNoCache tells the managed reader fetcher to bypass its own response
// cache and re-render the page fresh. Ignored by fetchers that have no
// cache of their own.
func WithNoCache() FetchOption {
	return func(o *fetchOptions) { o.noCache = true }
}

// WithWaitSelector overrides the CSS selector the headless fetcher waits
// on before extracting text, for pages whose article body mounts later
// than <body> itself (e.g. behind a loading skeleton). Ignored by fetchers
// that don't render the page.
func WithWaitSelector(selector string) FetchOption {
	return func(o *fetchOptions) { o.waitSelector = selector }
}
