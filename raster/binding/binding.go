// Package binding resolves caller-supplied named variables against a
// program's reflected binding interface and uploads them to the GPU.
//
// Resolution is split in two: Plan is pure CPU work that pairs every declared
// binding point with exactly one variable and validates shapes, so the whole
// matching ruleset is testable without a device; Upload turns a Plan into
// buffers and a bind group.
package binding

import (
	"fmt"

	"github.com/softglow/raster-go/raster/shader"
)

// Kind declares how a variable's data binds to the program.
type Kind int

const (
	// KindMatrix binds a 4×4 float32 matrix to a uniform slot.
	KindMatrix Kind = iota

	// KindBuffer binds a flat float32 array to a storage slot.
	KindBuffer
)

// String returns the kind's wire name.
func (k Kind) String() string {
	switch k {
	case KindMatrix:
		return "mat"
	case KindBuffer:
		return "buffer"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind parses a wire-format kind string.
//
// Parameters:
//   - s: "mat" or "buffer"
//
// Returns:
//   - Kind: the parsed kind
//   - error: a *ConfigurationError for any other string
func ParseKind(s string) (Kind, error) {
	switch s {
	case "mat":
		return KindMatrix, nil
	case "buffer":
		return KindBuffer, nil
	default:
		return 0, &ConfigurationError{Reason: fmt.Sprintf("unknown variable kind %q; must be \"mat\" or \"buffer\"", s)}
	}
}

// Variable is one named value submitted with a render request. Matrix data is
// column-major, matching the layout LookAt and Perspective produce.
type Variable struct {
	// Name must match a binding declared by the program.
	Name string

	// Kind declares the intended slot class.
	Kind Kind

	// Data is the flat float32 payload: exactly 16 elements for a matrix,
	// any length for a buffer.
	Data []float32

	// Stride, when positive, is the expected number of elements per
	// primitive for a buffer variable; len(Data) must be a multiple of it.
	// Zero disables the check. Ignored for matrices.
	Stride int
}

// Planned is one resolved variable: the slot it binds to and the payload to
// upload there.
type Planned struct {
	Name    string
	Binding uint32
	Kind    Kind
	Data    []float32
}

// Plan resolves variables against the program's binding interface.
//
// Every declared binding point must be matched by exactly one variable.
// Variables naming nothing the program declares are ignored, so one variable
// set can serve several programs with overlapping interfaces. The result is
// ordered by binding index.
//
// Parameters:
//   - iface: the program's reflected binding points, keyed by name
//   - vars: the submitted variables
//
// Returns:
//   - []Planned: one entry per declared binding point, sorted by slot
//   - error: a *ConfigurationError describing the first mismatch
func Plan(iface map[string]shader.BindingPoint, vars []Variable) ([]Planned, error) {
	bound := make(map[string]bool, len(iface))
	planned := make([]Planned, 0, len(iface))

	for _, v := range vars {
		point, declared := iface[v.Name]
		if !declared {
			continue
		}
		if bound[v.Name] {
			return nil, &ConfigurationError{Variable: v.Name, Reason: "bound more than once"}
		}

		switch v.Kind {
		case KindMatrix:
			if point.Kind != shader.BindingUniform {
				return nil, &ConfigurationError{Variable: v.Name, Reason: fmt.Sprintf(
					"submitted as a matrix but declared as a %s buffer (%s)", point.Kind, point.Type)}
			}
			if len(v.Data) != 16 {
				return nil, &ConfigurationError{Variable: v.Name, Reason: fmt.Sprintf(
					"matrix data has %d elements, want 16", len(v.Data))}
			}
		case KindBuffer:
			if point.Kind != shader.BindingStorage {
				return nil, &ConfigurationError{Variable: v.Name, Reason: fmt.Sprintf(
					"submitted as a buffer but declared as a %s (%s)", point.Kind, point.Type)}
			}
			if len(v.Data) == 0 {
				return nil, &ConfigurationError{Variable: v.Name, Reason: "buffer data is empty"}
			}
			if v.Stride > 0 && len(v.Data)%v.Stride != 0 {
				return nil, &ConfigurationError{Variable: v.Name, Reason: fmt.Sprintf(
					"buffer has %d elements, not a multiple of the %d-element stride", len(v.Data), v.Stride)}
			}
		default:
			return nil, &ConfigurationError{Variable: v.Name, Reason: fmt.Sprintf("unknown kind %d", int(v.Kind))}
		}

		bound[v.Name] = true
		planned = append(planned, Planned{
			Name:    v.Name,
			Binding: point.Binding,
			Kind:    v.Kind,
			Data:    v.Data,
		})
	}

	for name := range iface {
		if !bound[name] {
			return nil, &ConfigurationError{Variable: name, Reason: "declared by the program but not bound"}
		}
	}

	sortPlanned(planned)
	return planned, nil
}

// sortPlanned orders entries by binding index. Interfaces are small, so an
// insertion sort keeps this allocation-free.
func sortPlanned(planned []Planned) {
	for i := 1; i < len(planned); i++ {
		for j := i; j > 0 && planned[j-1].Binding > planned[j].Binding; j-- {
			planned[j-1], planned[j] = planned[j], planned[j-1]
		}
	}
}
