/*
 * Copyright 2025 SREDiag Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package lifecycle

import (
	"context"
	"fmt"
	"io"

	"github.com/srediag/plugin-lifecycle/api"
	"github.com/srediag/plugin-lifecycle/pkg/audit"
)

// Install resolves ref and runs its install capability, then activates it
// when opts.Activate is set. Only resolution failures are returned; failing
// capabilities are reported through the sink.
func (m *Manager) Install(ctx context.Context, ref api.Ref, opts api.InstallOptions) (err error) {
	ctx, end := m.begin(ctx, audit.OpInstall, ref)
	defer func() { end(err) }()

	rec, err := m.resolve(ctx, ref, opts.Path)
	if err != nil {
		m.report(ctx, audit.OpInstall, ref.Name(), err)
		return err
	}
	if ierr := m.invoke(ctx, audit.OpInstall, rec, api.Module.Install); ierr != nil {
		m.report(ctx, audit.OpInstall, rec.Name, ierr)
		return nil
	}
	m.report(ctx, audit.OpInstall, rec.Name, nil)
	if opts.Activate {
		m.activateRecord(ctx, rec)
	}
	return nil
}

// Uninstall deactivates ref first when it is active, then runs its
// uninstall capability. Handles always count as active. An active module is
// uninstalled through its registered instance; anything else is resolved
// first. A successfully uninstalled instance is closed when it implements
// io.Closer.
func (m *Manager) Uninstall(ctx context.Context, ref api.Ref, opts api.UninstallOptions) (err error) {
	ctx, end := m.begin(ctx, audit.OpUninstall, ref)
	defer func() { end(err) }()

	rec, active := m.registered(ref)
	if h, isHandle := ref.Handle(); isHandle {
		rec, active = h, true
	}
	if active {
		m.deactivateRecord(ctx, rec)
	} else if rec, err = m.resolve(ctx, ref, opts.Path); err != nil {
		m.report(ctx, audit.OpUninstall, ref.Name(), err)
		return err
	}

	if ierr := m.invoke(ctx, audit.OpUninstall, rec, api.Module.Uninstall); ierr != nil {
		m.report(ctx, audit.OpUninstall, rec.Name, ierr)
		return nil
	}
	m.report(ctx, audit.OpUninstall, rec.Name, nil)
	if cur, ok := m.registry.Get(rec.Name); !ok || cur.Instance != rec.Instance {
		m.release(ctx, rec)
	}
	return nil
}

// Activate resolves ref, runs its activate capability and registers it
// under its name. A module already active under that name is deactivated
// and replaced.
func (m *Manager) Activate(ctx context.Context, ref api.Ref, opts api.ActivateOptions) (err error) {
	ctx, end := m.begin(ctx, audit.OpActivate, ref)
	defer func() { end(err) }()

	rec, err := m.resolve(ctx, ref, opts.Path)
	if err != nil {
		m.report(ctx, audit.OpActivate, ref.Name(), err)
		return err
	}
	m.activateRecord(ctx, rec)
	return nil
}

// Deactivate runs the deactivate capability of an active module and removes
// it from the registry. A name that is not active is reported as ErrNotActive
// and nothing is called.
func (m *Manager) Deactivate(ctx context.Context, ref api.Ref) (err error) {
	ctx, end := m.begin(ctx, audit.OpDeactivate, ref)
	defer func() { end(err) }()

	rec, ok := m.registered(ref)
	if !ok {
		h, isHandle := ref.Handle()
		if !isHandle {
			m.report(ctx, audit.OpDeactivate, ref.Name(), fmt.Errorf("%w: %s", ErrNotActive, ref.Name()))
			return nil
		}
		rec = h
	}
	m.deactivateRecord(ctx, rec)
	return nil
}

// Update deactivates ref when it is active, resolves it again, runs its
// update capability and reactivates it when opts.Activate is set, or when
// opts.KeepActive is set and the module was active. A name is
// resolved to a fresh instance, so the update applies to the new code.
func (m *Manager) Update(ctx context.Context, ref api.Ref, opts api.UpdateOptions) (err error) {
	ctx, end := m.begin(ctx, audit.OpUpdate, ref)
	defer func() { end(err) }()

	prev, ok := m.registered(ref)
	dropped := ok && m.deactivateRecord(ctx, prev)

	rec, err := m.resolve(ctx, ref, opts.Path)
	if dropped && (rec == nil || rec.Instance != prev.Instance) {
		m.release(ctx, prev)
	}
	if err != nil {
		m.report(ctx, audit.OpUpdate, ref.Name(), err)
		return err
	}
	if ierr := m.invoke(ctx, audit.OpUpdate, rec, api.Module.Update); ierr != nil {
		m.report(ctx, audit.OpUpdate, rec.Name, ierr)
		return nil
	}
	m.report(ctx, audit.OpUpdate, rec.Name, nil)
	if opts.Activate || (opts.KeepActive && ok) {
		m.activateRecord(ctx, rec)
	}
	return nil
}

// activateRecord must be called with the lock for rec.Name held.
func (m *Manager) activateRecord(ctx context.Context, rec *api.Record) {
	if prev, ok := m.registry.Get(rec.Name); ok {
		m.logger.DebugContext(ctx, "Module already active, replacing it.", "module", rec.Name)
		m.deactivateRecord(ctx, prev)
		if prev.Instance != rec.Instance {
			m.release(ctx, prev)
		}
	}
	if err := m.invoke(ctx, audit.OpActivate, rec, api.Module.Activate); err != nil {
		m.report(ctx, audit.OpActivate, rec.Name, err)
		return
	}
	m.registry.Set(rec.Name, rec)
	m.metrics.setActive(m.registry.Count())
	m.report(ctx, audit.OpActivate, rec.Name, nil)
}

// deactivateRecord must be called with the lock for rec.Name held. The
// registry entry is only dropped when it holds rec's instance.
func (m *Manager) deactivateRecord(ctx context.Context, rec *api.Record) bool {
	if err := m.invoke(ctx, audit.OpDeactivate, rec, api.Module.Deactivate); err != nil {
		m.report(ctx, audit.OpDeactivate, rec.Name, err)
		return false
	}
	m.registry.RemoveCb(rec.Name, func(_ string, cur *api.Record, exists bool) bool {
		return exists && cur.Instance == rec.Instance
	})
	m.metrics.setActive(m.registry.Count())
	m.report(ctx, audit.OpDeactivate, rec.Name, nil)
	return true
}

// release closes an instance the manager no longer holds.
func (m *Manager) release(ctx context.Context, rec *api.Record) {
	c, ok := rec.Instance.(io.Closer)
	if !ok {
		return
	}
	if err := c.Close(); err != nil {
		m.logger.WarnContext(ctx, "Closing module failed.", "module", rec.Name, "error", err)
	}
}
