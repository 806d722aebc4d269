/*
Package executor is the default transport: it sends prepared requests over
net/http and captures what was actually written on the wire.

# Protocols

The protocol profile of each request picks the client transport:
  - http1: HTTP/1.1 only, ALPN never offers h2
  - http2: HTTP/2 only; TLS with ALPN for https, prior knowledge (h2c) for http
  - auto: HTTP/1.1 transport configured for h2 upgrade through ALPN

# Headers

Header keys are sent with their declared casing. Host and Content-Length are
carried by the request line machinery, and Go's default User-Agent is never
added when the request does not declare one.

# Execution Trace

Every header field written by the transport (including HTTP/2 pseudo
headers such as :method and :authority) is recorded in order through
net/http/httptrace, together with DNS, connect, TLS and first byte timings.

# Cookies

Set-Cookie headers from every response, redirects included, are stored in the
run's jar before Send returns, unless the request disabled cookies.

# Decompression

Because Accept-Encoding is sent explicitly, bodies are decoded here for
gzip, deflate and br.

# Error Handling

Network failures, timeouts and invalid URLs wrap ErrTransport and return no
response.
*/
package executor
