package messaging

// GroupName returns the canonical conversation name for two usernames: the
// byte-wise lesser name, a dash, then the greater. Both participants compute
// the same name regardless of argument order.
func GroupName(a, b string) string {
	if a < b {
		return a + "-" + b
	}
	return b + "-" + a
}
