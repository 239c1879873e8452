package card

import "github.com/tjfontaine/chatwidget-gateway/internal/jsonvalue"

// Classifier reports whether a value has a known payload shape.
type Classifier func(jsonvalue.Value) bool

// IsServiceList matches a non-empty list of {id, title, description} objects
// whose three fields are non-empty strings.
func IsServiceList(v jsonvalue.Value) bool {
	return everyObject(v, func(item jsonvalue.Value) bool {
		return item.Field("id").NonEmptyString() &&
			item.Field("title").NonEmptyString() &&
			item.Field("description").NonEmptyString()
	})
}

// IsProcessList matches a non-empty list of steps. A step label may be a
// number or a string.
func IsProcessList(v jsonvalue.Value) bool {
	return everyObject(v, func(item jsonvalue.Value) bool {
		step := item.Field("step")
		if !step.IsNumber() && !step.IsString() {
			return false
		}
		return item.Field("title").IsString() && item.Field("description").IsString()
	})
}

// IsTimeSlotList matches a non-empty list of objects with a non-empty start.
func IsTimeSlotList(v jsonvalue.Value) bool {
	return everyObject(v, func(item jsonvalue.Value) bool {
		return item.Field("start").NonEmptyString()
	})
}

// IsAboutCompany matches an object carrying an image, or carrying body text
// together with a title or company name.
func IsAboutCompany(v jsonvalue.Value) bool {
	if !v.IsObject() {
		return false
	}
	if v.Field("image").NonEmptyString() {
		return true
	}
	hasText := v.Field("description").NonEmptyString() || v.Field("text").NonEmptyString()
	return hasText && (v.Field("title").Truthy() || v.Field("company_name").Truthy())
}

func everyObject(v jsonvalue.Value, pred func(jsonvalue.Value) bool) bool {
	items := v.Items()
	if len(items) == 0 {
		return false
	}
	for _, item := range items {
		if !item.IsObject() || !pred(item) {
			return false
		}
	}
	return true
}
