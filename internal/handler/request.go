package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
)

const maxBodyBytes = 1 << 20

type decodable interface {
	decode(d *jx.Decoder) error
}

// readBody decodes the JSON body into v and validates it.
func (h *Handler) readBody(w http.ResponseWriter, r *http.Request, v decodable) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	d := jx.Decode(body, 4096)
	if err := v.decode(d); err != nil {
		return badRequest("invalid request body", err)
	}
	return h.validate.Struct(v)
}

func decodeStr(d *jx.Decoder, dst *string) error {
	v, err := d.Str()
	*dst = v
	return err
}

type selectionRequest struct {
	Option string `validate:"required,max=100"`
	Value  string `validate:"required,max=200"`
}

type setCartItemRequest struct {
	ProductID  string             `validate:"required,max=100"`
	Quantity   int                `validate:"gte=1,lte=100000"`
	Selections []selectionRequest `validate:"max=20,dive"`
}

func (r *setCartItemRequest) decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "productId":
			return decodeStr(d, &r.ProductID)
		case "quantity":
			v, err := d.Int()
			r.Quantity = v
			return err
		case "selections":
			return d.Arr(func(d *jx.Decoder) error {
				var s selectionRequest
				err := d.Obj(func(d *jx.Decoder, key string) error {
					switch key {
					case "option":
						return decodeStr(d, &s.Option)
					case "value":
						return decodeStr(d, &s.Value)
					default:
						return d.Skip()
					}
				})
				r.Selections = append(r.Selections, s)
				return err
			})
		default:
			return d.Skip()
		}
	})
}

type couponRequest struct {
	Code string `validate:"required,max=64"`
}

func (r *couponRequest) decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		if key == "code" {
			return decodeStr(d, &r.Code)
		}
		return d.Skip()
	})
}

type shippingRequest struct {
	Name       string `validate:"required,max=200"`
	Phone      string `validate:"max=50"`
	Email      string `validate:"omitempty,email"`
	Line1      string `validate:"required,max=300"`
	Line2      string `validate:"max=300"`
	City       string `validate:"required,max=100"`
	State      string `validate:"max=100"`
	PostalCode string `validate:"required,max=20"`
	Country    string `validate:"required,max=100"`
}

func (r *shippingRequest) decode(d *jx.Decoder) error {
	fields := map[string]*string{
		"name":       &r.Name,
		"phone":      &r.Phone,
		"email":      &r.Email,
		"line1":      &r.Line1,
		"line2":      &r.Line2,
		"city":       &r.City,
		"state":      &r.State,
		"postalCode": &r.PostalCode,
		"country":    &r.Country,
	}
	return d.Obj(func(d *jx.Decoder, key string) error {
		if dst, ok := fields[key]; ok {
			return decodeStr(d, dst)
		}
		return d.Skip()
	})
}

type corporateRequest struct {
	CompanyName  string `validate:"required,max=200"`
	ContactName  string `validate:"max=200"`
	ContactEmail string `validate:"omitempty,email"`
	PONumber     string `validate:"max=100"`
}

func (r *corporateRequest) decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "companyName":
			return decodeStr(d, &r.CompanyName)
		case "contactName":
			return decodeStr(d, &r.ContactName)
		case "contactEmail":
			return decodeStr(d, &r.ContactEmail)
		case "poNumber":
			return decodeStr(d, &r.PONumber)
		default:
			return d.Skip()
		}
	})
}

type placeOrderRequest struct {
	Shipping      shippingRequest
	PaymentMethod string `validate:"required,oneof=card bank_transfer invoice cod"`
	CouponCode    string `validate:"max=64"`
	Corporate     *corporateRequest
}

func (r *placeOrderRequest) decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "shipping":
			return r.Shipping.decode(d)
		case "paymentMethod":
			return decodeStr(d, &r.PaymentMethod)
		case "couponCode":
			if d.Next() == jx.Null {
				return d.Null()
			}
			return decodeStr(d, &r.CouponCode)
		case "corporate":
			if d.Next() == jx.Null {
				return d.Null()
			}
			r.Corporate = &corporateRequest{}
			return r.Corporate.decode(d)
		default:
			return d.Skip()
		}
	})
}

type statusRequest struct {
	Status         string `validate:"required,oneof=pending pending_approval confirmed processing shipped delivered cancelled"`
	Notes          string `validate:"max=1000"`
	Carrier        string `validate:"max=100"`
	TrackingNumber string `validate:"max=100"`
}

func (r *statusRequest) decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "status":
			return decodeStr(d, &r.Status)
		case "notes":
			return decodeStr(d, &r.Notes)
		case "carrier":
			return decodeStr(d, &r.Carrier)
		case "trackingNumber":
			return decodeStr(d, &r.TrackingNumber)
		default:
			return d.Skip()
		}
	})
}

type cancelRequest struct {
	Reason string `validate:"max=1000"`
}

func (r *cancelRequest) decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		if key == "reason" {
			return decodeStr(d, &r.Reason)
		}
		return d.Skip()
	})
}

type approveRequest struct {
	Approved *bool  `validate:"required"`
	Notes    string `validate:"max=1000"`
}

func (r *approveRequest) decode(d *jx.Decoder) error {
	return d.Obj(func(d *jx.Decoder, key string) error {
		switch key {
		case "approved":
			v, err := d.Bool()
			if err != nil {
				return errors.Wrap(err, "approved")
			}
			r.Approved = &v
			return nil
		case "notes":
			return decodeStr(d, &r.Notes)
		default:
			return d.Skip()
		}
	})
}
