// Package archipelago is a minimal client for the Archipelago multiworld
// network protocol: it performs the RoomInfo/DataPackage/Connect handshake,
// decodes PrintJSON packets into typed events and sends Say commands.
package archipelago
