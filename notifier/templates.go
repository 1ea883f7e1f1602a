package notifier

import "html/template"

var buyerTemplate = template.Must(template.New("buyer").Parse(`
<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h1 style="color: #635bff;">¡Gracias por tu compra!</h1>
  <div style="background: #f8f9fa; padding: 20px; border-radius: 8px; margin: 20px 0;">
    <h2>📦 Detalles de tu compra:</h2>
    <p><strong>Producto:</strong> {{.ProductName}}</p>
    <p><strong>Precio:</strong> ${{printf "%.2f" .PricePaid}} USD</p>
    <p><strong>Fecha:</strong> {{.Date}}</p>
  </div>
  <div style="background: #e7f3ff; padding: 20px; border-radius: 8px; margin: 20px 0;">
    <h2>⬇️ Descarga tu producto:</h2>
    <a href="{{.DownloadURL}}"
       style="background: #635bff; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px; display: inline-block; margin: 10px 0;"
       target="_blank">
       DESCARGAR AHORA - {{.ProductName}}
    </a>
    <p style="color: #666; font-size: 14px; margin-top: 10px;">
      El enlace es válido por 30 días. Si tenés problemas, contactame.
    </p>
  </div>
  <div style="margin-top: 30px; padding-top: 20px; border-top: 1px solid #ddd;">
    <p>¿Necesitás ayuda? Contactame:</p>
    <p>📧 Email: {{.SupportEmail}}</p>
  </div>
</div>
`))

var operatorTemplate = template.Must(template.New("operator").Parse(`
<div style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto;">
  <h2>🛒 NUEVA VENTA - {{.ProductName}}</h2>
  <div style="background: #f8f9fa; padding: 15px; border-radius: 6px; margin: 15px 0;">
    <p><strong>Producto:</strong> {{.ProductName}}</p>
    <p><strong>Precio:</strong> ${{printf "%.2f" .PricePaid}} USD</p>
    <p><strong>Cliente:</strong> {{.CustomerEmail}}</p>
    <p><strong>Sesión:</strong> {{.SessionID}}</p>
    <p><strong>Fecha:</strong> {{.Date}}</p>
  </div>
</div>
`))

type mailData struct {
	ProductName   string
	PricePaid     float64
	Date          string
	DownloadURL   string
	CustomerEmail string
	SessionID     string
	SupportEmail  string
}
