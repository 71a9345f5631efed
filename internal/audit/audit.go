// Package audit contains internal helpers for lifecycle event formatting.
package audit

import (
	"github.com/valyala/bytebufferpool"

	"github.com/srediag/plugin-lifecycle/pkg/audit"
)

var pastTense = map[string]string{
	audit.OpInstall:    "installed",
	audit.OpUninstall:  "uninstalled",
	audit.OpUpdate:     "updated",
	audit.OpActivate:   "activated",
	audit.OpDeactivate: "deactivated",
	audit.OpResolve:    "resolved",
}

var progressive = map[string]string{
	audit.OpInstall:    "installing",
	audit.OpUninstall:  "uninstalling",
	audit.OpUpdate:     "updating",
	audit.OpActivate:   "activating",
	audit.OpDeactivate: "deactivating",
	audit.OpResolve:    "resolving",
}

// Message renders e as a single human readable line, e.g. "cache activated"
// or "error activating cache: boom".
func Message(e audit.Event) string {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if e.Failed() {
		_, _ = buf.WriteString("error ")
		_, _ = buf.WriteString(verb(progressive, e.Operation))
		_ = buf.WriteByte(' ')
		_, _ = buf.WriteString(moduleName(e.Module))
		if e.Err != nil {
			_, _ = buf.WriteString(": ")
			_, _ = buf.WriteString(e.Err.Error())
		}
		return buf.String()
	}

	_, _ = buf.WriteString(moduleName(e.Module))
	_ = buf.WriteByte(' ')
	_, _ = buf.WriteString(verb(pastTense, e.Operation))
	return buf.String()
}

func verb(table map[string]string, op string) string {
	if v, ok := table[op]; ok {
		return v
	}
	return op
}

func moduleName(name string) string {
	if name == "" {
		return "<unnamed>"
	}
	return name
}
