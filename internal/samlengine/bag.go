package samlengine

import (
	"github.com/crewjam/saml"

	"github.com/asiradnan/saml/internal/identity"
)

// BagFromAssertion extracts the attribute statements of a validated
// assertion into an attribute bag. Attributes are keyed by their wire name;
// when the assertion carries a friendly name as well, the values appear
// under both, so fallback chains match either form.
func BagFromAssertion(assertion *saml.Assertion) identity.Bag {
	bag := make(identity.Bag)

	for _, stmt := range assertion.AttributeStatements {
		for _, attr := range stmt.Attributes {
			values := make([]string, 0, len(attr.Values))

			for _, v := range attr.Values {
				if v.Value != "" {
					values = append(values, v.Value)
				}
			}

			if len(values) == 0 {
				continue
			}

			if attr.Name != "" {
				bag.Set(attr.Name, values...)
			}

			if attr.FriendlyName != "" && attr.FriendlyName != attr.Name {
				bag.Set(attr.FriendlyName, values...)
			}
		}
	}

	return bag
}

// AttributesFromBag converts an attribute bag into SAML attributes for
// assertion signing, using the given attrname-format identifier. Names are
// emitted in the bag's deterministic order.
func AttributesFromBag(bag identity.Bag, nameFormat string) []saml.Attribute {
	attrs := make([]saml.Attribute, 0, len(bag))

	for _, name := range bag.Names() {
		values := make([]saml.AttributeValue, 0, len(bag[name]))

		for _, v := range bag[name] {
			values = append(values, saml.AttributeValue{
				Type:  "xs:string",
				Value: v,
			})
		}

		attrs = append(attrs, saml.Attribute{
			Name:       name,
			NameFormat: nameFormat,
			Values:     values,
		})
	}

	return attrs
}

// NameIDFromAssertion returns the asserted subject name identifier, or ""
// when the assertion has no subject.
func NameIDFromAssertion(assertion *saml.Assertion) string {
	if assertion.Subject == nil || assertion.Subject.NameID == nil {
		return ""
	}

	return assertion.Subject.NameID.Value
}
