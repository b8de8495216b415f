package description

import (
	"bytes"
	"encoding/xml"
	"fmt"

	"github.com/upnp-media/upnp-go/pkg/model"
	"github.com/upnp-media/upnp-go/pkg/registry"
)

// XML namespaces of description documents.
const (
	DeviceNamespace  = "urn:schemas-upnp-org:device-1-0"
	ServiceNamespace = "urn:schemas-upnp-org:service-1-0"
	DLNANamespace    = "urn:schemas-dlna-org:device-1-0"
)

// SpecVersion is the UPnP architecture version of a document.
type SpecVersion struct {
	Major int `xml:"major"`
	Minor int `xml:"minor"`
}

// specVersion is UPnP Device Architecture 1.0.
var specVersion = SpecVersion{Major: 1, Minor: 0}

// Root is a device description document.
type Root struct {
	XMLName     xml.Name    `xml:"urn:schemas-upnp-org:device-1-0 root"`
	SpecVersion SpecVersion `xml:"specVersion"`
	Device      Device      `xml:"device"`
}

// Device is the description of one device.
type Device struct {
	DeviceType       string    `xml:"deviceType"`
	FriendlyName     string    `xml:"friendlyName"`
	Manufacturer     string    `xml:"manufacturer"`
	ManufacturerURL  string    `xml:"manufacturerURL,omitempty"`
	ModelDescription string    `xml:"modelDescription,omitempty"`
	ModelName        string    `xml:"modelName"`
	ModelNumber      string    `xml:"modelNumber,omitempty"`
	ModelURL         string    `xml:"modelURL,omitempty"`
	SerialNumber     string    `xml:"serialNumber,omitempty"`
	UDN              string    `xml:"UDN"`
	DLNADoc          string    `xml:"urn:schemas-dlna-org:device-1-0 X_DLNADOC,omitempty"`
	Services         []Service `xml:"serviceList>service,omitempty"`
	Devices          []Device  `xml:"deviceList>device,omitempty"`
	PresentationURL  string    `xml:"presentationURL,omitempty"`
}

// Service is a service entry of a device description.
type Service struct {
	ServiceType string `xml:"serviceType"`
	ServiceID   string `xml:"serviceId"`
	SCPDURL     string `xml:"SCPDURL"`
	ControlURL  string `xml:"controlURL"`
	EventSubURL string `xml:"eventSubURL"`
}

// ServiceLocator returns the registered endpoints of a service.
type ServiceLocator interface {
	ServiceEntry(svc *model.Service) (*registry.ServiceEntry, error)
}

// Options adds optional elements to a device description.
type Options struct {
	// DLNADoc is the X_DLNADOC value of the root device, such as
	// "DMS-1.50". Empty omits the element.
	DLNADoc string
}

// NewRoot builds the description document of a registered root device.
// Service URLs are the registry's paths, relative to the document's host.
func NewRoot(root *model.Device, locator ServiceLocator, opts Options) (*Root, error) {
	d, err := describeDevice(root, locator)
	if err != nil {
		return nil, err
	}
	d.DLNADoc = opts.DLNADoc
	return &Root{SpecVersion: specVersion, Device: *d}, nil
}

func describeDevice(dev *model.Device, locator ServiceLocator) (*Device, error) {
	info := dev.Info()
	d := &Device{
		DeviceType:       dev.Type(),
		FriendlyName:     dev.FriendlyName(),
		Manufacturer:     info.Manufacturer,
		ManufacturerURL:  info.ManufacturerURL,
		ModelDescription: info.ModelDescription,
		ModelName:        info.ModelName,
		ModelNumber:      info.ModelNumber,
		ModelURL:         info.ModelURL,
		SerialNumber:     info.SerialNumber,
		UDN:              dev.UDN(),
		PresentationURL:  info.PresentationURL,
	}
	for _, svc := range dev.Services() {
		entry, err := locator.ServiceEntry(svc)
		if err != nil {
			return nil, fmt.Errorf("service %s of %s: %w", svc.ID(), dev.UDN(), err)
		}
		d.Services = append(d.Services, Service{
			ServiceType: svc.Type(),
			ServiceID:   svc.ID(),
			SCPDURL:     entry.SCPDURL,
			ControlURL:  entry.ControlURL,
			EventSubURL: entry.EventURL,
		})
	}
	for _, child := range dev.Embedded() {
		cd, err := describeDevice(child, locator)
		if err != nil {
			return nil, err
		}
		d.Devices = append(d.Devices, *cd)
	}
	return d, nil
}

// Marshal renders a description document with an XML declaration.
func Marshal(doc any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}
