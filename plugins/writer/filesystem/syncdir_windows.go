//go:build windows

package filesystem

// syncDir 在 Windows 上为空操作。
func syncDir(string) error { return nil }
