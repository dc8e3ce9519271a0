package authenticode

import (
	"crypto/x509/pkix"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPlatformVendor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		subject pkix.Name
		want    bool
	}{
		{
			name: "exact match",
			subject: pkix.Name{
				Organization: []string{"Microsoft Corporation"},
				Locality:     []string{"Redmond"},
				Province:     []string{"Washington"},
				Country:      []string{"US"},
			},
			want: true,
		},
		{
			name: "case insensitive",
			subject: pkix.Name{
				Organization: []string{"MICROSOFT CORPORATION"},
				Locality:     []string{"redmond"},
				Province:     []string{"washington"},
				Country:      []string{"us"},
			},
			want: true,
		},
		{
			name: "padded values",
			subject: pkix.Name{
				Organization: []string{" Microsoft Corporation "},
				Locality:     []string{"Redmond"},
				Province:     []string{"Washington"},
				Country:      []string{"US"},
			},
			want: true,
		},
		{
			name: "lookalike organization",
			subject: pkix.Name{
				Organization: []string{"Microsoft Corporation Ltd"},
				Locality:     []string{"Redmond"},
				Province:     []string{"Washington"},
				Country:      []string{"US"},
			},
			want: false,
		},
		{
			name: "missing locality",
			subject: pkix.Name{
				Organization: []string{"Microsoft Corporation"},
				Province:     []string{"Washington"},
				Country:      []string{"US"},
			},
			want: false,
		},
		{
			name: "wrong country",
			subject: pkix.Name{
				Organization: []string{"Microsoft Corporation"},
				Locality:     []string{"Redmond"},
				Province:     []string{"Washington"},
				Country:      []string{"IE"},
			},
			want: false,
		},
		{
			name:    "empty subject",
			subject: pkix.Name{},
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsPlatformVendor(tt.subject))
		})
	}
}

func TestStatusString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "not signed", StatusNotSigned.String())
	assert.Equal(t, "valid", StatusValid.String())
	assert.Equal(t, "invalid", StatusInvalid.String())
}

func TestInspect_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := NewInspector().Inspect("does-not-exist.dll")
	assert.Error(t, err)
}
