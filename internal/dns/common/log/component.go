package log

import "maps"

// Component tags every entry written through l with component=name, so the
// resolver, ingest and admin lines can be told apart in one stream. Fields
// passed by the caller win over the tag.
func Component(l Logger, name string) Logger {
	return &componentLogger{next: l, name: name}
}

type componentLogger struct {
	next Logger
	name string
}

func (c *componentLogger) tag(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields)+1)
	out["component"] = c.name
	maps.Copy(out, fields)
	return out
}

func (c *componentLogger) Info(f map[string]any, msg string)  { c.next.Info(c.tag(f), msg) }
func (c *componentLogger) Error(f map[string]any, msg string) { c.next.Error(c.tag(f), msg) }
func (c *componentLogger) Debug(f map[string]any, msg string) { c.next.Debug(c.tag(f), msg) }
func (c *componentLogger) Warn(f map[string]any, msg string)  { c.next.Warn(c.tag(f), msg) }
func (c *componentLogger) Panic(f map[string]any, msg string) { c.next.Panic(c.tag(f), msg) }
func (c *componentLogger) Fatal(f map[string]any, msg string) { c.next.Fatal(c.tag(f), msg) }
