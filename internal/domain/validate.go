package domain

import (
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func validatorInstance() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
			name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return validate
}

// Validate checks struct tags on a record. The returned error lists every
// failing field.
func Validate(v any) error {
	err := validatorInstance().Struct(v)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s=%s (got %v)", fe.Field(), fe.Tag(), fe.Param(), fe.Value()))
	}
	return fmt.Errorf("invalid %T: %s", v, strings.Join(msgs, "; "))
}

// ValidateVertices validates each vertex and reports the first bad index.
func ValidateVertices(vs []Vertex) error {
	for i := range vs {
		if err := Validate(vs[i]); err != nil {
			return fmt.Errorf("vertex %d (id=%d): %w", i, vs[i].ID, err)
		}
	}
	return nil
}

// ValidateEdges validates each edge and reports the first bad index.
func ValidateEdges(es []Edge) error {
	for i := range es {
		if err := Validate(es[i]); err != nil {
			return fmt.Errorf("edge %d (%d->%d): %w", i, es[i].From, es[i].To, err)
		}
	}
	return nil
}

// ValidatePointsOfInterest validates each point of interest.
func ValidatePointsOfInterest(ps []PointOfInterest) error {
	for i := range ps {
		if err := Validate(ps[i]); err != nil {
			return fmt.Errorf("point of interest %d (%q): %w", i, ps[i].Name, err)
		}
	}
	return nil
}
