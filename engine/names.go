package engine

// Mangle builds the linker-visible symbol for an exported entity so every
// caller agrees on one scheme: module name, underscore, export name.
func Mangle(module, export string) string {
	return module + "_" + export
}
