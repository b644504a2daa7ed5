package documents

import (
	"text/template"
)

// Air freight is carried under its own terms, so every order document has
// an air and a ground wording.
var templates = template.Must(template.New("documents").Funcs(template.FuncMap{
	"date": func(v interface{ Format(string) string }) string { return v.Format("02.01.2006") },
}).Parse(`
{{define "PUBLIC_OFFER"}}PUBLIC OFFER
Order No. {{.Order.ID}} of {{date .Date}}

The carrier accepts the cargo of {{.Order.SenderName}} ({{.Order.SenderPhone}})
for delivery by road or rail to {{.Order.ReceiverName}} ({{.Order.ReceiverPhone}}).
Declared weight {{.Order.TotalWeight}} kg, volume {{.Order.TotalVolume}} m3.
Declared value {{.Order.Insurance.StringFixed 2}}.
{{end}}
{{define "PUBLIC_OFFER_AIR"}}PUBLIC OFFER (AIR FREIGHT)
Order No. {{.Order.ID}} of {{date .Date}}

The carrier accepts the cargo of {{.Order.SenderName}} ({{.Order.SenderPhone}})
for delivery by air to {{.Order.ReceiverName}} ({{.Order.ReceiverPhone}}).
Airline restrictions on dangerous goods apply.
Declared weight {{.Order.TotalWeight}} kg, volume {{.Order.TotalVolume}} m3.
Declared value {{.Order.Insurance.StringFixed 2}}.
{{end}}
{{define "WAIVER_AGREEMENT"}}WAIVER AGREEMENT
Order No. {{.Order.ID}} of {{date .Date}}

{{.Order.ReceiverName}} ({{.Order.ReceiverPhone}}) confirms receipt of the cargo
sent by {{.Order.SenderName}} ({{.Order.SenderPhone}}) and has no claims
against the carrier.
{{end}}
{{define "WAIVER_AGREEMENT_AIR"}}WAIVER AGREEMENT (AIR FREIGHT)
Order No. {{.Order.ID}} of {{date .Date}}

{{.Order.ReceiverName}} ({{.Order.ReceiverPhone}}) confirms receipt of the air
cargo sent by {{.Order.SenderName}} ({{.Order.SenderPhone}}) and has no claims
against the carrier or the airline.
{{end}}
{{define "DRIVER_CONTRACT"}}DRIVER CONTRACT
Shipment No. {{.Shipment.ID}} of {{date .Date}}

Driver: {{with .Driver}}{{.FullName}} ({{.Phone}}){{end}}
Transport: {{.Shipment.Type}} {{.Shipment.TransportNumber}}
Cargo weight {{.Shipment.CargoWeight}} kg, volume {{.Shipment.CargoVolume}} m3.
Price {{.Shipment.Price.StringFixed 2}}.
{{end}}
`))
