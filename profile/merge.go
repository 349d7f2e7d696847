package profile

// Merge folds other into p in place. The rule is the same throughout: a
// scalar the callee already has wins over the one from other; a collection
// from other is unioned/appended onto the callee's, or adopted wholesale if
// the callee had none. Path follows the scalar rule like any other field;
// ID and Inherits are never read from other.
func Merge(dst *Profile, other Profile) {
	if dst.Path == nil {
		dst.Path = other.Path
	}
	if dst.Seccomp == nil {
		dst.Seccomp = other.Seccomp
	}

	if other.Home != nil {
		if dst.Home != nil {
			mergeHome(dst.Home, *other.Home)
		} else {
			dst.Home = other.Home
		}
	}

	if other.Files != nil {
		if dst.Files != nil {
			mergeFiles(dst.Files, *other.Files)
		} else {
			dst.Files = other.Files
		}
	}

	if other.Environment != nil {
		if dst.Environment == nil {
			dst.Environment = make(map[string]string, len(other.Environment))
		}
		for k, v := range other.Environment {
			if _, exists := dst.Environment[k]; !exists {
				dst.Environment[k] = v
			}
		}
	}

	if other.Ipc != nil {
		if dst.Ipc != nil {
			mergeIpc(dst.Ipc, *other.Ipc)
		} else {
			dst.Ipc = other.Ipc
		}
	}

	if other.Configuration != nil {
		if dst.Configuration == nil {
			dst.Configuration = make(map[string]Profile, len(other.Configuration))
		}
		for name, conf := range other.Configuration {
			dst.Configuration[name] = conf
		}
	}

	if other.Hooks != nil {
		if dst.Hooks != nil {
			mergeHooks(dst.Hooks, *other.Hooks)
		} else {
			dst.Hooks = other.Hooks
		}
	}

	dst.Namespaces = unionNamespaces(dst.Namespaces, other.Namespaces)
	dst.Binaries = unionStrings(dst.Binaries, other.Binaries)
	dst.Libraries = unionStrings(dst.Libraries, other.Libraries)
	dst.Devices = unionStrings(dst.Devices, other.Devices)
	dst.Features = unionStrings(dst.Features, other.Features)
	dst.Conflicts = unionStrings(dst.Conflicts, other.Conflicts)
	dst.Arguments = append(dst.Arguments, other.Arguments...)
	dst.SandboxArgs = append(dst.SandboxArgs, other.SandboxArgs...)
}

// Base inverts Merge: source is the callee, so a scalar source already has
// wins over self's, self's collections are unioned/appended onto source's,
// and values source lacks are taken from self. ID and Inherits always come
// from self. Load uses it to apply a selected configuration table (self)
// to its owning profile (source).
func Base(self, source Profile) Profile {
	source.ID = self.ID
	source.Inherits = self.Inherits
	Merge(&source, self)
	return source
}

func mergeHome(dst *Home, other Home) {
	if dst.Name == nil {
		dst.Name = other.Name
	}
	if dst.Path == nil {
		dst.Path = other.Path
	}
	if dst.Lock == nil {
		dst.Lock = other.Lock
	}
	if dst.Policy == nil {
		dst.Policy = other.Policy
	}
}

func mergeIpc(dst *Ipc, other Ipc) {
	if dst.Disable == nil {
		dst.Disable = other.Disable
	}
	if dst.SystemBus == nil {
		dst.SystemBus = other.SystemBus
	}
	if dst.UserBus == nil {
		dst.UserBus = other.UserBus
	}
	dst.Portals = unionStrings(dst.Portals, other.Portals)
	dst.See = unionStrings(dst.See, other.See)
	dst.Talk = append(dst.Talk, other.Talk...)
	dst.Own = append(dst.Own, other.Own...)
	dst.Call = append(dst.Call, other.Call...)
}

func mergeFileSet(dst FileSet, other FileSet) FileSet {
	if dst == nil && other == nil {
		return nil
	}
	if dst == nil {
		dst = make(FileSet, len(other))
	}
	for mode, paths := range other {
		dst[mode] = unionStrings(dst[mode], paths)
	}
	return dst
}

func mergeFiles(dst *Files, other Files) {
	dst.Direct = mergeFileSet(dst.Direct, other.Direct)
	dst.Platform = mergeFileSet(dst.Platform, other.Platform)
	dst.Resources = mergeFileSet(dst.Resources, other.Resources)
	dst.User = mergeFileSet(dst.User, other.User)
	if dst.Passthrough == nil {
		dst.Passthrough = other.Passthrough
	}
}

func mergeHooks(dst *Hooks, other Hooks) {
	dst.Pre = append(dst.Pre, other.Pre...)
	dst.Post = append(dst.Post, other.Post...)
	if dst.Parent == nil {
		dst.Parent = other.Parent
	}
}

func unionStrings(dst, other []string) []string {
	if len(other) == 0 {
		return dst
	}
	seen := make(map[string]bool, len(dst))
	for _, v := range dst {
		seen[v] = true
	}
	for _, v := range other {
		if !seen[v] {
			dst = append(dst, v)
			seen[v] = true
		}
	}
	return dst
}

func unionNamespaces(dst, other []Namespace) []Namespace {
	if len(other) == 0 {
		return dst
	}
	seen := make(map[Namespace]bool, len(dst))
	for _, v := range dst {
		seen[v] = true
	}
	for _, v := range other {
		if !seen[v] {
			dst = append(dst, v)
			seen[v] = true
		}
	}
	return dst
}
