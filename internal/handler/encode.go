package handler

import (
	"net/http"
	"time"

	"github.com/go-faster/jx"
	"github.com/shopspring/decimal"

	"github.com/xenking/giftkart/internal/domain/order"
	"github.com/xenking/giftkart/internal/domain/product"
)

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	var e jx.Encoder
	encode(&e)
	writeBody(w, status, e.Bytes())
}

// money writes a JSON number with exactly two decimals.
func money(e *jx.Encoder, d decimal.Decimal) {
	e.Raw([]byte(d.StringFixed(2)))
}

func timestamp(e *jx.Encoder, name string, t *time.Time) {
	if t == nil {
		return
	}
	e.Field(name, func(e *jx.Encoder) { e.Str(t.UTC().Format(time.RFC3339)) })
}

func str(e *jx.Encoder, name, v string) {
	e.Field(name, func(e *jx.Encoder) { e.Str(v) })
}

func optStr(e *jx.Encoder, name, v string) {
	if v != "" {
		str(e, name, v)
	}
}

func encodeProduct(e *jx.Encoder, p *product.Product) {
	e.Obj(func(e *jx.Encoder) {
		str(e, "id", p.ID)
		str(e, "sku", p.SKU)
		str(e, "name", p.Name)
		str(e, "category", p.Category)
		e.Field("regularPrice", func(e *jx.Encoder) { money(e, p.RegularPrice) })
		if p.SalePrice != nil {
			e.Field("salePrice", func(e *jx.Encoder) { money(e, *p.SalePrice) })
		}
		e.Field("pricingTiers", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, t := range p.Tiers {
					e.Obj(func(e *jx.Encoder) {
						e.Field("minQuantity", func(e *jx.Encoder) { e.Int(t.MinQuantity) })
						if t.MaxQuantity != nil {
							e.Field("maxQuantity", func(e *jx.Encoder) { e.Int(*t.MaxQuantity) })
						}
						e.Field("price", func(e *jx.Encoder) { money(e, t.Price) })
					})
				}
			})
		})
		e.Field("options", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, o := range p.Options {
					e.Obj(func(e *jx.Encoder) {
						str(e, "name", o.Name)
						e.Field("values", func(e *jx.Encoder) {
							e.Arr(func(e *jx.Encoder) {
								for _, v := range o.Values {
									e.Obj(func(e *jx.Encoder) {
										str(e, "value", v.Value)
										e.Field("priceAdjustment", func(e *jx.Encoder) { money(e, v.PriceAdjustment) })
									})
								}
							})
						})
					})
				}
			})
		})
		e.Field("stockQuantity", func(e *jx.Encoder) { e.Int(p.StockQuantity) })
		e.Field("isActive", func(e *jx.Encoder) { e.Bool(p.Active) })
	})
}

func encodeItems(e *jx.Encoder, items []order.LineItem) {
	e.Arr(func(e *jx.Encoder) {
		for _, it := range items {
			e.Obj(func(e *jx.Encoder) {
				str(e, "productId", it.ProductID)
				str(e, "sku", it.SKU)
				str(e, "name", it.Name)
				str(e, "category", it.Category)
				e.Field("quantity", func(e *jx.Encoder) { e.Int(it.Quantity) })
				e.Field("unitPrice", func(e *jx.Encoder) { money(e, it.UnitPrice) })
				if len(it.Adjustments) > 0 {
					e.Field("adjustments", func(e *jx.Encoder) {
						e.Arr(func(e *jx.Encoder) {
							for _, a := range it.Adjustments {
								e.Obj(func(e *jx.Encoder) {
									str(e, "option", a.Option)
									str(e, "value", a.Value)
									e.Field("amount", func(e *jx.Encoder) { money(e, a.Amount) })
								})
							}
						})
					})
				}
				e.Field("lineTotal", func(e *jx.Encoder) { money(e, it.LineTotal) })
			})
		}
	})
}

func encodePricing(e *jx.Encoder, p order.Pricing) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("subtotal", func(e *jx.Encoder) { money(e, p.Subtotal) })
		e.Field("discount", func(e *jx.Encoder) { money(e, p.Discount) })
		e.Field("tax", func(e *jx.Encoder) { money(e, p.Tax) })
		e.Field("shipping", func(e *jx.Encoder) { money(e, p.Shipping) })
		e.Field("total", func(e *jx.Encoder) { money(e, p.Total) })
	})
}

func encodeCoupon(e *jx.Encoder, c *order.AppliedCoupon) {
	e.Obj(func(e *jx.Encoder) {
		str(e, "code", c.Code)
		str(e, "discountType", string(c.DiscountType))
		e.Field("value", func(e *jx.Encoder) { money(e, c.Value) })
		e.Field("discount", func(e *jx.Encoder) { money(e, c.Discount) })
	})
}

func encodeQuote(e *jx.Encoder, q *order.Quote) {
	e.Obj(func(e *jx.Encoder) {
		e.Field("items", func(e *jx.Encoder) { encodeItems(e, q.Items) })
		if q.Coupon != nil {
			e.Field("coupon", func(e *jx.Encoder) { encodeCoupon(e, q.Coupon) })
		}
		e.Field("pricing", func(e *jx.Encoder) { encodePricing(e, q.Pricing) })
	})
}

func encodeOrder(e *jx.Encoder, o *order.Order) {
	e.Obj(func(e *jx.Encoder) {
		str(e, "id", o.ID)
		str(e, "orderNumber", o.Number)
		str(e, "userId", o.UserID)
		str(e, "status", string(o.Status))
		e.Field("items", func(e *jx.Encoder) { encodeItems(e, o.Items) })
		e.Field("pricing", func(e *jx.Encoder) { encodePricing(e, o.Pricing) })
		if o.Coupon != nil {
			e.Field("coupon", func(e *jx.Encoder) { encodeCoupon(e, o.Coupon) })
		}
		e.Field("shipping", func(e *jx.Encoder) {
			s := o.Shipping
			e.Obj(func(e *jx.Encoder) {
				str(e, "name", s.Name)
				optStr(e, "phone", s.Phone)
				optStr(e, "email", s.Email)
				str(e, "line1", s.Line1)
				optStr(e, "line2", s.Line2)
				str(e, "city", s.City)
				optStr(e, "state", s.State)
				str(e, "postalCode", s.PostalCode)
				str(e, "country", s.Country)
			})
		})
		e.Field("payment", func(e *jx.Encoder) {
			e.Obj(func(e *jx.Encoder) {
				str(e, "method", string(o.Payment.Method))
				str(e, "status", string(o.Payment.Status))
			})
		})
		if c := o.Corporate; c != nil {
			e.Field("corporate", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					str(e, "companyName", c.CompanyName)
					optStr(e, "contactName", c.ContactName)
					optStr(e, "contactEmail", c.ContactEmail)
					optStr(e, "poNumber", c.PONumber)
					str(e, "approvalStatus", string(c.Approval.Status))
					optStr(e, "approvedBy", c.Approval.DecidedBy)
					timestamp(e, "decidedAt", c.Approval.DecidedAt)
					optStr(e, "approvalNotes", c.Approval.Notes)
				})
			})
		}
		if t := o.Tracking; t != nil {
			e.Field("tracking", func(e *jx.Encoder) {
				e.Obj(func(e *jx.Encoder) {
					str(e, "carrier", t.Carrier)
					str(e, "number", t.Number)
				})
			})
		}
		e.Field("statusHistory", func(e *jx.Encoder) {
			e.Arr(func(e *jx.Encoder) {
				for _, h := range o.History.Entries() {
					e.Obj(func(e *jx.Encoder) {
						str(e, "status", string(h.Status))
						str(e, "actor", h.Actor)
						optStr(e, "notes", h.Notes)
						timestamp(e, "at", &h.At)
					})
				}
			})
		})
		timestamp(e, "confirmedAt", o.ConfirmedAt)
		timestamp(e, "processingAt", o.ProcessingAt)
		timestamp(e, "shippedAt", o.ShippedAt)
		timestamp(e, "deliveredAt", o.DeliveredAt)
		timestamp(e, "cancelledAt", o.CancelledAt)
		optStr(e, "cancelReason", o.CancelReason)
		timestamp(e, "createdAt", &o.CreatedAt)
		timestamp(e, "updatedAt", &o.UpdatedAt)
	})
}
