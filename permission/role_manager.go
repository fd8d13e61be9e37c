package permission

import (
	"errors"
	"sync"
)

// RoleManager maps role names to permission masks.
type RoleManager struct {
	registry *Registry

	mu     sync.RWMutex
	roles  map[string]Mask64
	frozen bool
}

func NewRoleManager(registry *Registry) *RoleManager {
	return &RoleManager{
		registry: registry,
		roles:    make(map[string]Mask64),
	}
}

// RegisterRole grants permissionNames to roleName. Every permission must
// already be registered.
func (rm *RoleManager) RegisterRole(roleName string, permissionNames []string) error {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	if rm.frozen {
		return errors.New("role manager frozen")
	}
	if roleName == "" {
		return errors.New("role name empty")
	}
	if _, exists := rm.roles[roleName]; exists {
		return errors.New("role already registered")
	}

	var mask Mask64
	for _, perm := range permissionNames {
		bit, ok := rm.registry.Bit(perm)
		if !ok {
			return errors.New("permission not registered: " + perm)
		}
		mask.Set(bit)
	}

	rm.roles[roleName] = mask
	return nil
}

// GetMask returns the mask of roleName.
func (rm *RoleManager) GetMask(roleName string) (Mask64, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	mask, ok := rm.roles[roleName]
	return mask, ok
}

// Allows reports whether roleName holds permissionName. Unknown roles and
// unknown permissions are denied.
func (rm *RoleManager) Allows(roleName, permissionName string) bool {
	bit, ok := rm.registry.Bit(permissionName)
	if !ok {
		return false
	}
	mask, ok := rm.GetMask(roleName)
	if !ok {
		return false
	}
	return mask.Has(bit)
}

// HasRole reports whether roleName is registered.
func (rm *RoleManager) HasRole(roleName string) bool {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	_, ok := rm.roles[roleName]
	return ok
}

func (rm *RoleManager) Freeze() {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	rm.frozen = true
}

func (rm *RoleManager) Count() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()
	return len(rm.roles)
}
