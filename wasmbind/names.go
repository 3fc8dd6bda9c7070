package wasmbind

import (
	"strconv"

	"github.com/wippyai/script-bridge/script"
)

// Export name prefixes follow the component model's naming of resource
// members.
const (
	prefixConstructor = "[constructor]"
	prefixMethod      = "[method]"
	prefixStatic      = "[static]"
	prefixDrop        = "[resource-drop]"

	// CabiRealloc is the guest allocator used to return strings.
	CabiRealloc = "cabi_realloc"
)

func resourceName(td *script.TypeData) string {
	return script.KebabCase(td.Name)
}

// overloadName suffixes every overload after the first with its index:
// f, f#1, f#2.
func overloadName(name string, i int) string {
	if i == 0 {
		return name
	}
	return name + "#" + strconv.Itoa(i)
}

func functionName(fd *script.FunctionData, i int) string {
	return overloadName(script.KebabCase(fd.Name), i)
}

func constructorName(td *script.TypeData, i int) string {
	return overloadName(prefixConstructor+resourceName(td), i)
}

func methodName(td *script.TypeData, m *script.Method, i int) string {
	prefix := prefixMethod
	if m.Static {
		prefix = prefixStatic
	}
	return overloadName(prefix+resourceName(td)+"."+script.KebabCase(m.Name), i)
}

func getterName(td *script.TypeData, f *script.Field) string {
	return prefixMethod + resourceName(td) + ".get-" + script.KebabCase(f.Name)
}

func setterName(td *script.TypeData, f *script.Field) string {
	return prefixMethod + resourceName(td) + ".set-" + script.KebabCase(f.Name)
}

func dropName(td *script.TypeData) string {
	return prefixDrop + resourceName(td)
}

// enumName exports an enum constant as a static getter of its type.
func enumName(td *script.TypeData, v script.EnumValue) string {
	return prefixStatic + resourceName(td) + "." + script.KebabCase(v.Name)
}

// VirtualName is the guest export a virtual method override must use.
func VirtualName(td *script.TypeData, method string) string {
	return prefixMethod + resourceName(td) + "." + script.KebabCase(method)
}
