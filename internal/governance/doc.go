// Package governance holds the runtime safety controls the request pipeline
// applies on behalf of a connection policy: retrying throttled requests within
// an attempt and wait budget and bounding each request by its timeout. The
// token bucket RateLimiter lets the emulator throttle like the service does.
//
// The controls are driven purely by resolved policy values; configuration
// resolution itself never retries.
package governance
