package api

import (
	"errors"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/go-playground/validator/v10"
)

// Strategy selects which wrapper variants serve the operations.
type Strategy string

const (
	StrategyHTMLOnly  Strategy = "htmlOnly"
	StrategyHTMLFirst Strategy = "htmlFirst"
	StrategyRESTFirst Strategy = "restFirst"
	StrategyRESTOnly  Strategy = "restOnly"
	StrategyCustom    Strategy = "custom"
)

const (
	DefaultAutoAuthRetryCredits = 3
	DefaultAuthValidity         = 120 // seconds
)

// AccountCredentials are the Myfox portal login credentials.
type AccountCredentials struct {
	Username string `json:"username" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// Options configure a wrapper. Build them with [NewOptions]; a wrapper keeps
// its own copy and never changes it.
type Options struct {
	APIStrategy          Strategy            `json:"apiStrategy" validate:"required,oneof=htmlOnly htmlFirst restFirst restOnly custom"`
	AutoAuthentication   bool                `json:"autoAuthentication"`
	AutoAuthRetryCredits int                 `json:"autoAuthRetryCredits" validate:"gte=0,lte=10"`
	AuthValidity         int                 `json:"authValidity" validate:"gte=1,lte=86400"`
	MyfoxSiteIDs         []int               `json:"myfoxSiteIds" validate:"required,min=1,dive,gt=0"`
	AccountCredentials   *AccountCredentials `json:"accountCredentials,omitempty"`
}

// Option overrides one default of [Options].
type Option func(*Options)

func WithStrategy(s Strategy) Option {
	return func(o *Options) { o.APIStrategy = s }
}

func WithAutoAuthentication(enabled bool) Option {
	return func(o *Options) { o.AutoAuthentication = enabled }
}

func WithAutoAuthRetryCredits(credits int) Option {
	return func(o *Options) { o.AutoAuthRetryCredits = credits }
}

// WithAuthValidity sets how long, in seconds, a successful authentication is
// trusted.
func WithAuthValidity(seconds int) Option {
	return func(o *Options) { o.AuthValidity = seconds }
}

func WithSiteIDs(ids ...int) Option {
	return func(o *Options) { o.MyfoxSiteIDs = slices.Clone(ids) }
}

func WithCredentials(username, password string) Option {
	return func(o *Options) {
		o.AccountCredentials = &AccountCredentials{Username: username, Password: password}
	}
}

// DefaultOptions returns the defaults. They are not valid on their own: at
// least one site id must be set.
func DefaultOptions() Options {
	return Options{
		APIStrategy:          StrategyCustom,
		AutoAuthentication:   true,
		AutoAuthRetryCredits: DefaultAutoAuthRetryCredits,
		AuthValidity:         DefaultAuthValidity,
	}
}

// NewOptions merges overrides onto [DefaultOptions] and validates the result.
func NewOptions(overrides ...Option) (Options, error) {
	opts := DefaultOptions()
	for _, override := range overrides {
		override(&opts)
	}

	if err := opts.Validate(); err != nil {
		return Options{}, err
	}

	return opts.clone(), nil
}

// Validate checks every option against its allowed range.
func (o Options) Validate() error {
	return validateStruct(o)
}

// HasSiteID reports whether id is in the site id allow-list.
func (o Options) HasSiteID(id int) bool {
	return slices.Contains(o.MyfoxSiteIDs, id)
}

func (o Options) clone() Options {
	c := o
	c.MyfoxSiteIDs = slices.Clone(o.MyfoxSiteIDs)
	if o.AccountCredentials != nil {
		creds := *o.AccountCredentials
		c.AccountCredentials = &creds
	}
	return c
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		name, _, _ := strings.Cut(field.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return field.Name
		}
		return name
	})
	return v
}

// validateStruct runs the validator and converts the first failure into a
// [ValidationError].
func validateStruct(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrors validator.ValidationErrors
	if !errors.As(err, &fieldErrors) || len(fieldErrors) == 0 {
		return fmt.Errorf("validate %T: %w", s, err)
	}

	fe := fieldErrors[0]
	return &ValidationError{Field: fieldPath(fe), Message: describe(fe)}
}

// fieldPath drops the struct name from the namespace, e.g.
// "Options.myfoxSiteIds[0]" becomes "myfoxSiteIds[0]".
func fieldPath(fe validator.FieldError) string {
	_, path, found := strings.Cut(fe.Namespace(), ".")
	if !found {
		return fe.Field()
	}
	return path
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is missing"
	case "oneof":
		return fmt.Sprintf("must be one of [%s]", strings.Join(strings.Fields(fe.Param()), ", "))
	case "gt":
		if fe.Param() == "0" {
			return "must be a positive number"
		}
		return "must be greater than " + fe.Param()
	case "gte":
		return "must be larger than or equal to " + fe.Param()
	case "lte":
		return "must be less than or equal to " + fe.Param()
	case "min":
		return fmt.Sprintf("must contain at least %s items", fe.Param())
	case "email":
		return "must be a valid email"
	default:
		return fmt.Sprintf("failed on the %q rule", fe.Tag())
	}
}
