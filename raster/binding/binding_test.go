package binding

import (
	"errors"
	"strings"
	"testing"

	"github.com/softglow/raster-go/raster/shader"
)

func testInterface() map[string]shader.BindingPoint {
	return map[string]shader.BindingPoint{
		"view_projection_matrix": {Binding: 0, Kind: shader.BindingUniform, Type: "mat4x4<f32>", MinBindingSize: 64},
		"triangular_mesh":        {Binding: 1, Kind: shader.BindingStorage, Type: "array<f32>", MinBindingSize: 4},
	}
}

func identityMatrix() []float32 {
	return []float32{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

func TestParseKind(t *testing.T) {
	if k, err := ParseKind("mat"); err != nil || k != KindMatrix {
		t.Errorf("ParseKind(\"mat\") = %v, %v", k, err)
	}
	if k, err := ParseKind("buffer"); err != nil || k != KindBuffer {
		t.Errorf("ParseKind(\"buffer\") = %v, %v", k, err)
	}
	_, err := ParseKind("image")
	var cfgErr *ConfigurationError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("ParseKind(\"image\") error = %v, want *ConfigurationError", err)
	}
}

func TestPlan(t *testing.T) {
	mesh := make([]float32, 18)
	planned, err := Plan(testInterface(), []Variable{
		{Name: "triangular_mesh", Kind: KindBuffer, Data: mesh, Stride: 9},
		{Name: "view_projection_matrix", Kind: KindMatrix, Data: identityMatrix()},
	})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(planned) != 2 {
		t.Fatalf("len(planned) = %d, want 2", len(planned))
	}
	// Sorted by binding index regardless of submission order.
	if planned[0].Name != "view_projection_matrix" || planned[0].Binding != 0 {
		t.Errorf("planned[0] = %+v, want view_projection_matrix at binding 0", planned[0])
	}
	if planned[1].Name != "triangular_mesh" || planned[1].Binding != 1 {
		t.Errorf("planned[1] = %+v, want triangular_mesh at binding 1", planned[1])
	}
}

func TestPlanIgnoresExtraVariables(t *testing.T) {
	planned, err := Plan(testInterface(), []Variable{
		{Name: "view_projection_matrix", Kind: KindMatrix, Data: identityMatrix()},
		{Name: "triangular_mesh", Kind: KindBuffer, Data: make([]float32, 9), Stride: 9},
		{Name: "unused_extra", Kind: KindBuffer, Data: make([]float32, 3)},
	})
	if err != nil {
		t.Fatalf("Plan() error = %v", err)
	}
	if len(planned) != 2 {
		t.Errorf("len(planned) = %d, want 2 (extra variable should be ignored)", len(planned))
	}
}

func TestPlanErrors(t *testing.T) {
	tests := []struct {
		name       string
		vars       []Variable
		wantVar    string
		wantSubstr string
	}{
		{
			name: "unbound declaration",
			vars: []Variable{
				{Name: "view_projection_matrix", Kind: KindMatrix, Data: identityMatrix()},
			},
			wantVar:    "triangular_mesh",
			wantSubstr: "not bound",
		},
		{
			name: "duplicate binding",
			vars: []Variable{
				{Name: "view_projection_matrix", Kind: KindMatrix, Data: identityMatrix()},
				{Name: "view_projection_matrix", Kind: KindMatrix, Data: identityMatrix()},
			},
			wantVar:    "view_projection_matrix",
			wantSubstr: "more than once",
		},
		{
			name: "matrix wrong length",
			vars: []Variable{
				{Name: "view_projection_matrix", Kind: KindMatrix, Data: make([]float32, 12)},
				{Name: "triangular_mesh", Kind: KindBuffer, Data: make([]float32, 9)},
			},
			wantVar:    "view_projection_matrix",
			wantSubstr: "want 16",
		},
		{
			name: "matrix bound to storage slot",
			vars: []Variable{
				{Name: "view_projection_matrix", Kind: KindMatrix, Data: identityMatrix()},
				{Name: "triangular_mesh", Kind: KindMatrix, Data: identityMatrix()},
			},
			wantVar:    "triangular_mesh",
			wantSubstr: "declared as a storage",
		},
		{
			name: "buffer bound to uniform slot",
			vars: []Variable{
				{Name: "view_projection_matrix", Kind: KindBuffer, Data: identityMatrix()},
				{Name: "triangular_mesh", Kind: KindBuffer, Data: make([]float32, 9)},
			},
			wantVar:    "view_projection_matrix",
			wantSubstr: "declared as a uniform",
		},
		{
			name: "empty buffer",
			vars: []Variable{
				{Name: "view_projection_matrix", Kind: KindMatrix, Data: identityMatrix()},
				{Name: "triangular_mesh", Kind: KindBuffer, Data: nil},
			},
			wantVar:    "triangular_mesh",
			wantSubstr: "empty",
		},
		{
			name: "stride mismatch",
			vars: []Variable{
				{Name: "view_projection_matrix", Kind: KindMatrix, Data: identityMatrix()},
				{Name: "triangular_mesh", Kind: KindBuffer, Data: make([]float32, 10), Stride: 9},
			},
			wantVar:    "triangular_mesh",
			wantSubstr: "stride",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Plan(testInterface(), tt.vars)
			var cfgErr *ConfigurationError
			if !errors.As(err, &cfgErr) {
				t.Fatalf("Plan() error = %v, want *ConfigurationError", err)
			}
			if cfgErr.Variable != tt.wantVar {
				t.Errorf("ConfigurationError.Variable = %q, want %q", cfgErr.Variable, tt.wantVar)
			}
			if !strings.Contains(cfgErr.Reason, tt.wantSubstr) {
				t.Errorf("ConfigurationError.Reason = %q, want substring %q", cfgErr.Reason, tt.wantSubstr)
			}
		})
	}
}

func TestPlanStrideZeroUnchecked(t *testing.T) {
	_, err := Plan(testInterface(), []Variable{
		{Name: "view_projection_matrix", Kind: KindMatrix, Data: identityMatrix()},
		{Name: "triangular_mesh", Kind: KindBuffer, Data: make([]float32, 7)},
	})
	if err != nil {
		t.Fatalf("Plan() error = %v, want nil when stride is zero", err)
	}
}
